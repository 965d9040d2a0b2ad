// Package cache persists fetched order aggregates by key. There is no expiry:
// an entry lives until it is overwritten by a forced refresh or the whole
// store is cleared.
package cache

import (
	"context"
	"errors"
	"sort"

	"github.com/TemirB/shop-orders/internal/domain"
)

//go:generate mockgen -source=cache.go -destination=cache_mock_test.go -package=cache

var ErrCacheIO = errors.New("cache i/o error")

type Store interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, bool, error)
	// Put replaces the entry stored under key.
	Put(ctx context.Context, key string, entry domain.CacheEntry) error
	Clear(ctx context.Context) error
	Metadata(ctx context.Context) (domain.CacheMetadata, error)
	// Keys lists stored keys, most recently fetched first.
	Keys(ctx context.Context) ([]string, error)
}

// Keyed is a stored entry with its key.
type Keyed struct {
	Key   string
	Entry domain.CacheEntry
}

// BulkReader is implemented by stores that can return their newest entries
// from a single read.
type BulkReader interface {
	// Recent returns up to n entries, most recently fetched first.
	Recent(ctx context.Context, n int) ([]Keyed, error)
}

func sortedKeys(entries map[string]domain.CacheEntry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := entries[keys[i]].FetchedAt, entries[keys[j]].FetchedAt
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.After(b)
	})
	return keys
}

func newest(entries map[string]domain.CacheEntry, n int) []Keyed {
	keys := sortedKeys(entries)
	if n < len(keys) {
		keys = keys[:n]
	}
	out := make([]Keyed, 0, len(keys))
	for _, k := range keys {
		out = append(out, Keyed{Key: k, Entry: entries[k]})
	}
	return out
}
