package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TemirB/shop-orders/internal/cache"
	"github.com/TemirB/shop-orders/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS order_cache (
  key                   TEXT PRIMARY KEY,
  count                 INTEGER NOT NULL,
  has_max_limit         INTEGER NOT NULL,
  chunks_with_max_limit INTEGER NOT NULL DEFAULT 0,
  orders                TEXT NOT NULL,
  fetched_at            INTEGER NOT NULL,
  updated_at            INTEGER NOT NULL
)`

// SQLiteStore is a single-file cache store for deployments without Postgres.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func toNanos(v time.Time) int64 { return v.UTC().UnixNano() }

func fromNanos(v int64) time.Time { return time.Unix(0, v).UTC() }

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	var (
		e       domain.CacheEntry
		raw     string
		fetched int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT count, has_max_limit, chunks_with_max_limit, orders, fetched_at FROM order_cache WHERE key = ?`,
		key,
	).Scan(&e.Count, &e.HasMaxLimit, &e.ChunksWithMaxLimit, &raw, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	if e.Orders, err = decodeOrders([]byte(raw)); err != nil {
		return domain.CacheEntry{}, false, err
	}
	e.FetchedAt = fromNanos(fetched)
	return e, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, e domain.CacheEntry) error {
	now := s.now().UTC()
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}
	raw, err := encodeOrders(e.Orders)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO order_cache (key, count, has_max_limit, chunks_with_max_limit, orders, fetched_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   count = excluded.count,
		   has_max_limit = excluded.has_max_limit,
		   chunks_with_max_limit = excluded.chunks_with_max_limit,
		   orders = excluded.orders,
		   fetched_at = excluded.fetched_at,
		   updated_at = excluded.updated_at`,
		key, e.Count, e.HasMaxLimit, e.ChunksWithMaxLimit, string(raw), toNanos(e.FetchedAt), toNanos(now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM order_cache`); err != nil {
		return fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	return nil
}

func (s *SQLiteStore) Metadata(ctx context.Context) (domain.CacheMetadata, error) {
	var (
		m    domain.CacheMetadata
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at), COUNT(*), COALESCE(SUM(LENGTH(orders)), 0) FROM order_cache`,
	).Scan(&last, &m.DaysCached, &m.CacheSize)
	if err != nil {
		return domain.CacheMetadata{}, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	if last.Valid {
		t := fromNanos(last.Int64)
		m.LastUpdated = &t
	}
	return m, nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM order_cache ORDER BY fetched_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
