package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/domain"
)

type document struct {
	LastUpdated *time.Time                   `json:"lastUpdated"`
	Orders      map[string]domain.CacheEntry `json:"orders"`
}

// FileStore keeps every entry in one JSON document on disk. Each write reads
// the document, changes it and replaces the file through a temp file and
// rename. Writers in the same process are serialized; separate processes
// sharing the file are not coordinated.
type FileStore struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

type FileOption func(*FileStore)

func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

func NewFileStore(path string, logger *zap.Logger, opts ...FileOption) *FileStore {
	s := &FileStore{path: path, now: time.Now, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(_ context.Context, key string) (domain.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	e, ok := doc.Orders[key]
	return e, ok, nil
}

func (s *FileStore) Put(_ context.Context, key string, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = now
	}
	doc.Orders[key] = entry
	doc.LastUpdated = &now
	return s.write(doc)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(document{Orders: map[string]domain.CacheEntry{}})
}

func (s *FileStore) Metadata(_ context.Context) (domain.CacheMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return domain.CacheMetadata{}, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.CacheMetadata{}, fmt.Errorf("%w: encode: %w", ErrCacheIO, err)
	}
	return domain.CacheMetadata{
		LastUpdated: doc.LastUpdated,
		DaysCached:  len(doc.Orders),
		CacheSize:   int64(len(raw)),
	}, nil
}

func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return sortedKeys(doc.Orders), nil
}

func (s *FileStore) Recent(_ context.Context, n int) ([]Keyed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return newest(doc.Orders, n), nil
}

// read loads the document. A missing file is an empty cache; an unparsable
// one is logged and treated as empty so the next write replaces it.
func (s *FileStore) read() (document, error) {
	empty := document{Orders: map[string]domain.CacheEntry{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("%w: read %s: %w", ErrCacheIO, s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("cache file is corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return empty, nil
	}
	if doc.Orders == nil {
		doc.Orders = map[string]domain.CacheEntry{}
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrCacheIO, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %w", ErrCacheIO, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrCacheIO, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename: %w", ErrCacheIO, err)
	}
	return nil
}
