package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/app"
	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("build app", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	log.Info("starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("tz_offset", cfg.TZOffset),
		zap.Bool("kafka", cfg.Kafka.Enabled()),
	)
	if err := a.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return
	}
	log.Info("server stopped")
}
