package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet remembers which product links already produced a video.
type SeenSet interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// LinkKey normalizes a product URL and hashes it.
func LinkKey(raw string) string {
	h := sha256.Sum256([]byte(normalizeURL(raw)))
	return hex.EncodeToString(h[:])
}

// normalizeURL lowercases scheme and host, drops the fragment, strips
// tracking parameters and trims a trailing slash.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" || lk == "ref" || lk == "tag" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}

// MemorySeen is a process-local SeenSet.
type MemorySeen struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{keys: make(map[string]struct{})}
}

func (m *MemorySeen) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemorySeen) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
	return nil
}

// RedisSeenConfig configures the Redis-backed SeenSet
type RedisSeenConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// RedisSeen keeps link hashes in a Redis set whose expiry slides forward on
// every insertion.
type RedisSeen struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSeen connects and verifies the server answers.
func NewRedisSeen(cfg RedisSeenConfig) (*RedisSeen, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	if cfg.Key == "" {
		cfg.Key = "clipfarm:seen_links"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &RedisSeen{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

func (r *RedisSeen) Seen(ctx context.Context, key string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, key).Result()
}

func (r *RedisSeen) Mark(ctx context.Context, key string) error {
	if err := r.client.SAdd(ctx, r.key, key).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, r.key, r.ttl).Err()
}

func (r *RedisSeen) Close() error {
	return r.client.Close()
}
