package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/application/service"
	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/pkg/retry"
	"github.com/TemirB/shop-orders/internal/upstream/shopify"
	"github.com/TemirB/shop-orders/internal/window"
)

//go:generate mockgen -source=handler.go -destination=handler_mock_test.go -package=handler

var (
	ErrBadJSON     = errors.New("bad json")
	ErrRefresh     = errors.New("refresh failed")
	ErrCircuitOpen = errors.New("circuit breaker open")

	errIncomplete = errors.New("aggregate incomplete")
)

type Service interface {
	Retrieve(ctx context.Context, req service.Request) (domain.Aggregate, error)
}

type Breaker interface {
	Allow() error
	Success()
	Failure()
}

type Handler struct {
	service     Service
	breaker     Breaker
	logger      *zap.Logger
	retryPolicy config.Retry
}

func NewHandler(service Service, brk Breaker, retryPolicy config.Retry, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		breaker:     brk,
		logger:      logger,
		retryPolicy: retryPolicy,
	}
}

// Handle processes one refresh request. The consumer commits the offset only
// when Handle returns nil.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) error {
	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	var req domain.RefreshRequest
	if err := json.Unmarshal(message.Value, &req); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return ErrBadJSON
	}
	if _, err := window.Resolve(req.Date, req.Window, time.UTC); err != nil {
		h.logger.Error("invalid refresh request",
			zap.String("date", req.Date),
			zap.String("window", req.Window),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %v", ErrBadJSON, err)
	}

	var agg domain.Aggregate
	err := retry.Do(ctx, h.retryPolicy, func() error {
		a, err := h.service.Retrieve(ctx, service.Request{Date: req.Date, Window: req.Window, Force: true})
		switch {
		case err != nil && !shopify.IsRetryable(err):
			return retry.Permanent(err)
		case err != nil:
			return err
		case a.Incomplete:
			return errIncomplete
		}
		agg = a
		return nil
	})
	if err != nil {
		h.logger.Error("refresh failed after retries",
			zap.String("date", req.Date),
			zap.String("window", req.Window),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %v", ErrRefresh, err)
	}

	h.breaker.Success()
	h.logger.Info("successfully refreshed date",
		zap.String("date", agg.Date),
		zap.String("window", agg.Window),
		zap.Int("count", agg.Count),
		zap.Bool("has_max_limit", agg.HasMaxLimit),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Int("key_bytes", len(message.Key)),
		zap.Int("value_bytes", len(message.Value)),
	)
	return nil
}
