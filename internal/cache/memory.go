package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/TemirB/shop-orders/internal/domain"
)

// MemoryStore is a process-local Store, used when persistence is not wanted
// and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]domain.CacheEntry
	lastUpdated *time.Time
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.CacheEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if ok {
		e.Orders = append([]domain.Order(nil), e.Orders...)
	}
	return e, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = now
	}
	entry.Orders = append([]domain.Order(nil), entry.Orders...)
	m.entries[key] = entry
	m.lastUpdated = &now
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]domain.CacheEntry)
	m.lastUpdated = nil
	return nil
}

func (m *MemoryStore) Metadata(_ context.Context) (domain.CacheMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, _ := json.Marshal(m.entries)
	return domain.CacheMetadata{
		LastUpdated: m.lastUpdated,
		DaysCached:  len(m.entries),
		CacheSize:   int64(len(raw)),
	}, nil
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.entries), nil
}

func (m *MemoryStore) Recent(_ context.Context, n int) ([]Keyed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newest(m.entries, n), nil
}
