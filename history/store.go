package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrQuotaExceeded is returned by a store that cannot hold a value
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KeyValueStore persists opaque values by key. Get returns nil, nil for a
// missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps values in process with a total byte quota. A quota of 0
// means unlimited.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	maxBytes int
}

func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), maxBytes: maxBytes}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxBytes > 0 {
		used := len(key) + len(value)
		for k, v := range s.data {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used > s.maxBytes {
			return ErrQuotaExceeded
		}
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxBytes caps a single value; larger writes fail with ErrQuotaExceeded
	MaxBytes int
}

// RedisStore keeps values as plain redis strings.
type RedisStore struct {
	client   *redis.Client
	maxBytes int
}

func NewRedisStore(cfg RedisConfig, logger *zap.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Failed to connect to Redis, history writes will fail until it is reachable",
			zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return &RedisStore{client: rdb, maxBytes: cfg.MaxBytes}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return ErrQuotaExceeded
	}
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		// maxmemory with noeviction rejects writes with OOM
		if strings.HasPrefix(err.Error(), "OOM") {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
