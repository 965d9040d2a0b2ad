package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemirB/shop-orders/internal/cache"
	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
)

// PostgresStore keeps one row per cache key with the orders as jsonb.
type PostgresStore struct {
	pool   *pgxpool.Pool
	tables config.Tables
	now    func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool, t config.Tables) *PostgresStore {
	return &PostgresStore{pool: pool, tables: t, now: time.Now}
}

func (r *PostgresStore) qt() string { return fmt.Sprintf(`"%s"."%s"`, r.tables.Schema, r.tables.Cache) }

// EnsureSchema creates the schema and cache table when missing.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, r.tables.Schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  key                   text PRIMARY KEY,
		  count                 integer NOT NULL,
		  has_max_limit         boolean NOT NULL,
		  chunks_with_max_limit integer NOT NULL DEFAULT 0,
		  orders                jsonb NOT NULL,
		  fetched_at            timestamptz NOT NULL,
		  updated_at            timestamptz NOT NULL
		)
	`, r.qt()))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (r *PostgresStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	var (
		e   domain.CacheEntry
		raw []byte
	)
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count, has_max_limit, chunks_with_max_limit, orders, fetched_at
		FROM %s WHERE key=$1
	`, r.qt()), key).Scan(&e.Count, &e.HasMaxLimit, &e.ChunksWithMaxLimit, &raw, &e.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	if e.Orders, err = decodeOrders(raw); err != nil {
		return domain.CacheEntry{}, false, err
	}
	e.FetchedAt = e.FetchedAt.UTC()
	return e, true, nil
}

// toMicros drops what timestamptz cannot hold.
func toMicros(v time.Time) time.Time { return v.UTC().Truncate(time.Microsecond) }

func (r *PostgresStore) Put(ctx context.Context, key string, e domain.CacheEntry) error {
	now := r.now().UTC()
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}
	e.FetchedAt = toMicros(e.FetchedAt)
	raw, err := encodeOrders(e.Orders)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, count, has_max_limit, chunks_with_max_limit, orders, fetched_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (key) DO UPDATE SET
		  count=EXCLUDED.count,
		  has_max_limit=EXCLUDED.has_max_limit,
		  chunks_with_max_limit=EXCLUDED.chunks_with_max_limit,
		  orders=EXCLUDED.orders,
		  fetched_at=EXCLUDED.fetched_at,
		  updated_at=EXCLUDED.updated_at
	`, r.qt()), key, e.Count, e.HasMaxLimit, e.ChunksWithMaxLimit, raw, e.FetchedAt, now)
	if err != nil {
		return fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	return nil
}

func (r *PostgresStore) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.qt())); err != nil {
		return fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	return nil
}

func (r *PostgresStore) Metadata(ctx context.Context) (domain.CacheMetadata, error) {
	var (
		m    domain.CacheMetadata
		last *time.Time
	)
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT max(updated_at), count(*), coalesce(sum(octet_length(orders::text)), 0)
		FROM %s
	`, r.qt())).Scan(&last, &m.DaysCached, &m.CacheSize)
	if err != nil {
		return domain.CacheMetadata{}, fmt.Errorf("%w: %w", cache.ErrCacheIO, err)
	}
	m.LastUpdated = last
	return m, nil
}

func (r *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY fetched_at DESC, key`, r.qt()))
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

func encodeOrders(orders []domain.Order) ([]byte, error) {
	if orders == nil {
		orders = []domain.Order{}
	}
	raw, err := json.Marshal(orders)
	if err != nil {
		return nil, fmt.Errorf("%w: encode orders: %w", cache.ErrCacheIO, err)
	}
	return raw, nil
}

func decodeOrders(raw []byte) ([]domain.Order, error) {
	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("%w: decode orders: %w", cache.ErrCacheIO, err)
	}
	return orders, nil
}
