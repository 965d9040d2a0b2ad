package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/observability"
	"github.com/TemirB/shop-orders/internal/window"
)

//go:generate mockgen -source=service.go -destination=service_mock_test.go -package=service

type Upstream interface {
	Fetch(ctx context.Context, w window.Window, limit int) (domain.FetchResult, error)
	FetchSince(ctx context.Context, since time.Time, limit int) (domain.FetchResult, error)
	ListLimit() int
	BulkLimit() int
}

type Cache interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, bool, error)
	Put(ctx context.Context, key string, entry domain.CacheEntry) error
	Clear(ctx context.Context) error
	Metadata(ctx context.Context) (domain.CacheMetadata, error)
}

type Publisher interface {
	PublishFetch(ctx context.Context, ev domain.FetchEvent) error
}

type Service struct {
	upstream  Upstream
	cache     Cache
	publisher Publisher
	logger    *zap.Logger
	metrics   observability.Metrics

	loc          *time.Location
	retryPolicy  config.Retry
	fetchWorkers int
	batchDelay   time.Duration
	lookbackDays int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithRetry(p config.Retry) Option {
	return func(s *Service) { s.retryPolicy = p }
}

// WithFetchWorkers lets sibling windows be fetched concurrently. 1 keeps
// every call sequential.
func WithFetchWorkers(n int) Option {
	return func(s *Service) { s.fetchWorkers = n }
}

func WithBatchDelay(d time.Duration) Option {
	return func(s *Service) { s.batchDelay = d }
}

func WithDeliveryLookback(days int) Option {
	return func(s *Service) { s.lookbackDays = days }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(upstream Upstream, cache Cache, logger *zap.Logger, metrics observability.Metrics, opts ...Option) *Service {
	s := &Service{
		upstream:     upstream,
		cache:        cache,
		logger:       logger,
		metrics:      metrics,
		loc:          time.UTC,
		retryPolicy:  config.Retry{Attempts: 1},
		fetchWorkers: 1,
		lookbackDays: 30,
		now:          time.Now,
		sleep:        sleepWithContext,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewNoop()
	}
	if s.retryPolicy.Attempts < 1 {
		s.retryPolicy.Attempts = 1
	}
	if s.fetchWorkers < 1 {
		s.fetchWorkers = 1
	}
	return s
}

// Location is the fixed zone all dates are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// Today is the current date in the service's zone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(window.DateLayout)
}

// stamp is the fetch time recorded on results. Postgres keeps microseconds,
// so nothing finer is handed to a store.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type retryable interface{ IsRetryable() bool }

func isRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r) && r.IsRetryable()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
