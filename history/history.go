package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"clipfarm/config"
	"clipfarm/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no entry has the requested id
var ErrNotFound = errors.New("history entry not found")

// History is the list of recent productions, most recent first.
type History struct {
	store  KeyValueStore
	key    string
	max    int
	logger *zap.Logger

	// serializes read-modify-write cycles
	mu sync.Mutex
}

func New(store KeyValueStore, logger *zap.Logger) *History {
	return &History{
		store:  store,
		key:    config.HistoryKey,
		max:    config.MaxHistoryEntries,
		logger: logger,
	}
}

// Load returns the persisted entries. Undecodable data is wiped and an empty
// history is returned.
func (h *History) Load(ctx context.Context) ([]types.SavedScript, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

func (h *History) load(ctx context.Context) ([]types.SavedScript, error) {
	raw, err := h.store.Get(ctx, h.key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []types.SavedScript{}, nil
	}
	var entries []types.SavedScript
	if err := json.Unmarshal(raw, &entries); err != nil {
		h.logger.Error("Failed to load history, discarding it", zap.Error(err))
		if derr := h.store.Delete(ctx, h.key); derr != nil {
			return nil, fmt.Errorf("failed to wipe corrupt history: %w", derr)
		}
		return []types.SavedScript{}, nil
	}
	return entries, nil
}

// Add prepends an entry, keeps the newest entries up to the cap and saves.
// It returns the entries that were actually persisted.
func (h *History) Add(ctx context.Context, entry types.SavedScript) ([]types.SavedScript, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	updated := append([]types.SavedScript{entry}, entries...)
	if len(updated) > h.max {
		updated = updated[:h.max]
	}
	return h.save(ctx, updated)
}

// save persists entries after slimming them. When the store is out of room
// the oldest entry is dropped and the write retried, down to a single entry.
// Callers hold h.mu.
func (h *History) save(ctx context.Context, entries []types.SavedScript) ([]types.SavedScript, error) {
	slim := make([]types.SavedScript, len(entries))
	for i, e := range entries {
		slim[i] = e.Slim()
	}

	for {
		data, err := json.Marshal(slim)
		if err != nil {
			return nil, fmt.Errorf("failed to encode history: %w", err)
		}
		err = h.store.Set(ctx, h.key, data)
		if err == nil {
			return slim, nil
		}
		if !errors.Is(err, ErrQuotaExceeded) || len(slim) <= 1 {
			h.logger.Error("Failed to save history", zap.Int("entries", len(slim)), zap.Error(err))
			return nil, err
		}
		h.logger.Warn("History over quota, dropping oldest entry", zap.Int("entries", len(slim)))
		slim = slim[:len(slim)-1]
	}
}

// Get returns the entry with the given id.
func (h *History) Get(ctx context.Context, id string) (types.SavedScript, error) {
	entries, err := h.Load(ctx)
	if err != nil {
		return types.SavedScript{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return types.SavedScript{}, ErrNotFound
}

// Clear removes the whole history.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Delete(ctx, h.key)
}

// NewID returns a short random base36 id.
func NewID() string {
	u := uuid.New()
	s := new(big.Int).SetBytes(u[:]).Text(36)
	for len(s) < config.HistoryIDLength {
		s = "0" + s
	}
	return s[len(s)-config.HistoryIDLength:]
}
