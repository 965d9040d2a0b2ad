// Package app assembles the service from configuration and runs its HTTP and
// Kafka front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/application/handler"
	"github.com/TemirB/shop-orders/internal/application/service"
	"github.com/TemirB/shop-orders/internal/cache"
	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/database"
	"github.com/TemirB/shop-orders/internal/httpapi"
	"github.com/TemirB/shop-orders/internal/kafka"
	"github.com/TemirB/shop-orders/internal/observability"
	"github.com/TemirB/shop-orders/internal/pkg/breaker"
	"github.com/TemirB/shop-orders/internal/upstream/shopify"
	"github.com/TemirB/shop-orders/internal/window"
)

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *observability.Inmem
	Service  *service.Service
	Producer *kafka.Producer

	closers []func() error
}

// Build wires storage, the upstream client and the service. The Kafka
// producer is nil when no brokers are configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInmem(500),
	}

	loc, err := window.ParseOffset(cfg.TZOffset)
	if err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	layered, err := cache.NewLayered(store, cfg.Cache.Cap, a.Metrics, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create lru: %w", err)
	}
	if cfg.Cache.Warm > 0 {
		n := layered.Warm(ctx, cfg.Cache.Warm)
		logger.Info("cache warmed", zap.Int("entries", n), zap.String("backend", cfg.Cache.Backend))
	}

	client := shopify.New(cfg.Shopify, breaker.New(cfg.Breaker), logger, shopify.WithMetrics(a.Metrics))

	opts := []service.Option{
		service.WithLocation(loc),
		service.WithRetry(cfg.Retry),
		service.WithFetchWorkers(cfg.FetchWorkers),
		service.WithBatchDelay(cfg.Batch.Delay),
		service.WithDeliveryLookback(cfg.DeliveryLookbackDays),
	}
	if cfg.Kafka.Enabled() {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka, logger); err != nil {
			logger.Warn("kafka topics not ensured", zap.Error(err))
		}
		a.Producer = kafka.NewProducer(kafka.NewWriter(cfg.Kafka), cfg.Kafka, logger)
		a.closers = append(a.closers, a.Producer.Close)
		opts = append(opts, service.WithPublisher(a.Producer))
	}

	a.Service = service.NewService(client, layered, logger, a.Metrics, opts...)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (cache.Store, error) {
	switch a.Config.Cache.Backend {
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, a.Config.DSN(), a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store := database.NewPostgresStore(pool, a.Config.Tables)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		store, err := database.OpenSQLite(a.Config.Cache.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendFile:
		return cache.NewFileStore(a.Config.Cache.Path, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.Config.Cache.Backend)
	}
}

// Run serves HTTP and, when Kafka is enabled, consumes refresh requests
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.Config.Kafka.Enabled() {
		reader := kafka.NewReader(a.Config.Kafka)
		h := handler.NewHandler(a.Service, breaker.New(a.Config.Breaker), a.Config.Retry, a.Logger)
		consumer := kafka.NewConsumer(h, reader, a.Config.Kafka.Workers, a.Metrics, a.Logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Start(ctx)
			if err := reader.Close(); err != nil {
				a.Logger.Warn("kafka reader close", zap.Error(err))
			}
		}()
	}

	srv := httpapi.New(a.Service, a.Metrics, a.Logger, a.Metrics)
	a.Logger.Info("http server listening", zap.String("addr", a.Config.HTTPAddr))
	err := srv.ListenAndServe(ctx, a.Config.HTTPAddr)

	cancel()
	wg.Wait()
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
