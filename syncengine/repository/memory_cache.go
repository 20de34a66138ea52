package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/dustin/go-humanize"
)

// MemoryCacheStore implements cache.Store in process memory. It enforces no
// size bound; scope-level Clear calls keep it small.
type MemoryCacheStore struct {
	mu    sync.RWMutex
	store map[string]cache.Entry
	now   func() time.Time
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		store: make(map[string]cache.Entry),
		now:   time.Now,
	}
}

// WithClock replaces the time source, mostly for tests.
func (m *MemoryCacheStore) WithClock(now func() time.Time) *MemoryCacheStore {
	m.now = now
	return m
}

func (m *MemoryCacheStore) Get(ctx context.Context, key string, ttl time.Duration) (cache.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[key]
	if !ok || !e.Fresh(m.now(), ttl) {
		return cache.Entry{}, false
	}
	return e, true
}

func (m *MemoryCacheStore) Set(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = cache.Entry{Value: value, StoredAt: m.now()}
	return nil
}

func (m *MemoryCacheStore) Clear(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		m.store = make(map[string]cache.Entry)
		return nil
	}
	for _, k := range keys {
		delete(m.store, k)
	}
	return nil
}

// Stats sizes entries by their JSON encoding, which is close enough to tell
// a gallery that is getting heavy.
func (m *MemoryCacheStore) Stats(ctx context.Context) (cache.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, e := range m.store {
		if raw, err := json.Marshal(e.Value); err == nil {
			total += int64(len(raw))
		}
	}
	return cache.Stats{
		Entries:   len(m.store),
		TotalSize: total,
		HumanSize: humanize.Bytes(uint64(total)),
	}, nil
}
