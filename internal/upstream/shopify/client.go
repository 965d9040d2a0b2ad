// Package shopify is the admin API client used to list orders by creation
// time. Every listing is capped by the limit passed in; a result that fills
// the cap is flagged as truncated and the caller decides whether to narrow
// the window.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/observability"
	"github.com/TemirB/shop-orders/internal/pkg/breaker"
	"github.com/TemirB/shop-orders/internal/window"
)

const maxErrorBody = 4 << 10

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	listLimit  int
	bulkLimit  int

	breaker *breaker.Breaker
	metrics observability.Metrics
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg config.Shopify, br *breaker.Breaker, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint:   fmt.Sprintf("%s/admin/api/%s/orders.json", cfg.Endpoint(), cfg.APIVersion),
		token:      cfg.AccessToken,
		httpClient: &http.Client{},
		timeout:    cfg.Timeout,
		listLimit:  cfg.ListLimit,
		bulkLimit:  cfg.BulkLimit,
		breaker:    br,
		metrics:    observability.NewNoop(),
		logger:     logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) ListLimit() int { return c.listLimit }
func (c *Client) BulkLimit() int { return c.bulkLimit }

// Fetch lists at most limit orders created inside w, both bounds inclusive.
func (c *Client) Fetch(ctx context.Context, w window.Window, limit int) (domain.FetchResult, error) {
	params := url.Values{}
	params.Set("created_at_min", w.Start.Format(time.RFC3339))
	params.Set("created_at_max", w.End.Format(time.RFC3339))
	return c.list(ctx, w.Label, params, limit)
}

// FetchSince lists at most limit orders created at or after since.
func (c *Client) FetchSince(ctx context.Context, since time.Time, limit int) (domain.FetchResult, error) {
	params := url.Values{}
	params.Set("created_at_min", since.Format(time.RFC3339))
	return c.list(ctx, "since "+since.Format(time.RFC3339), params, limit)
}

type ordersResponse struct {
	Orders []domain.Order `json:"orders"`
}

func (c *Client) list(ctx context.Context, label string, params url.Values, limit int) (domain.FetchResult, error) {
	if limit <= 0 {
		limit = c.listLimit
	}
	params.Set("status", "any")
	params.Set("limit", strconv.Itoa(limit))

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			c.metrics.ObserveFetch(label, 0, 0, false, err)
			return domain.FetchResult{}, &UpstreamError{StatusCode: http.StatusServiceUnavailable, Err: err}
		}
	}

	start := time.Now()
	res, err := c.do(ctx, params, limit)
	durMs := float64(time.Since(start).Microseconds()) / 1000
	c.metrics.ObserveFetch(label, durMs, res.Count, res.Truncated, err)
	c.record(err)

	if err != nil {
		c.logger.Warn("shopify fetch failed",
			zap.String("window", label),
			zap.Float64("dur_ms", durMs),
			zap.Error(err),
		)
		return domain.FetchResult{}, err
	}

	c.logger.Debug("shopify fetch",
		zap.String("window", label),
		zap.Int("count", res.Count),
		zap.Int("limit", limit),
		zap.Bool("truncated", res.Truncated),
		zap.Float64("dur_ms", durMs),
	)
	return res, nil
}

func (c *Client) do(ctx context.Context, params url.Values, limit int) (domain.FetchResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FetchResult{}, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.FetchResult{}, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload ordersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.FetchResult{}, &UpstreamError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("decode orders: %w", err)}
	}

	n := len(payload.Orders)
	return domain.FetchResult{
		Orders:    payload.Orders,
		Count:     n,
		Limit:     limit,
		Truncated: n >= limit,
	}, nil
}

func (c *Client) record(err error) {
	if c.breaker == nil {
		return
	}
	if err != nil && IsRetryable(err) {
		c.breaker.Failure()
		return
	}
	c.breaker.Success()
}
