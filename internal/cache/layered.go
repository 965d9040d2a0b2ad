package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/observability"
)

// Layered serves hot keys from an in-memory LRU and falls through to the
// persistent store on a miss.
type Layered struct {
	size    int
	lru     *lru.Cache[string, domain.CacheEntry]
	store   Store
	metrics observability.Metrics
	logger  *zap.Logger
}

func NewLayered(store Store, size int, metrics observability.Metrics, logger *zap.Logger) (*Layered, error) {
	c, err := lru.New[string, domain.CacheEntry](size)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Layered{
		size:    size,
		lru:     c,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Warm loads up to limit of the most recently fetched entries into memory,
// never more than the LRU holds. Store errors leave the cache cold.
func (l *Layered) Warm(ctx context.Context, limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > l.size {
		limit = l.size
	}
	entries, err := l.recent(ctx, limit)
	if err != nil {
		l.logger.Warn("cache warm skipped", zap.Error(err))
		return 0
	}
	// oldest first so the newest end up most recently used
	for i := len(entries) - 1; i >= 0; i-- {
		l.lru.Add(entries[i].Key, entries[i].Entry)
	}
	return len(entries)
}

func (l *Layered) recent(ctx context.Context, n int) ([]Keyed, error) {
	if br, ok := l.store.(BulkReader); ok {
		return br.Recent(ctx, n)
	}
	keys, err := l.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]Keyed, 0, len(keys))
	for _, k := range keys {
		e, ok, err := l.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		out = append(out, Keyed{Key: k, Entry: e})
	}
	return out, nil
}

func (l *Layered) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	if e, ok := l.lru.Get(key); ok {
		l.metrics.IncCacheHit()
		return e, true, nil
	}
	e, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	if !ok {
		l.metrics.IncCacheMiss()
		return domain.CacheEntry{}, false, nil
	}
	l.metrics.IncCacheHit()
	l.lru.Add(key, e)
	return e, true, nil
}

func (l *Layered) Put(ctx context.Context, key string, entry domain.CacheEntry) error {
	if err := l.store.Put(ctx, key, entry); err != nil {
		l.lru.Remove(key)
		return err
	}
	l.lru.Add(key, entry)
	return nil
}

func (l *Layered) Clear(ctx context.Context) error {
	l.lru.Purge()
	return l.store.Clear(ctx)
}

func (l *Layered) Metadata(ctx context.Context) (domain.CacheMetadata, error) {
	return l.store.Metadata(ctx)
}

func (l *Layered) Keys(ctx context.Context) ([]string, error) {
	return l.store.Keys(ctx)
}

// Len is the number of entries held in memory.
func (l *Layered) Len() int { return l.lru.Len() }
