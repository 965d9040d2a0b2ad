package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/TemirB/shop-orders/internal/config"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/observability"
	"github.com/TemirB/shop-orders/internal/upstream/shopify"
	"github.com/TemirB/shop-orders/internal/window"
)

var (
	sydney  = time.FixedZone("AEST", 10*3600)
	testNow = time.Date(2025, 5, 6, 20, 0, 0, 0, sydney)
)

const testDate = "2025-05-06"

// fakeUpstream serves a fixed set of orders, honouring the window bounds and
// the page cap the way the admin API does.
type fakeUpstream struct {
	mu      sync.Mutex
	list    int
	bulk    int
	orders  []domain.Order
	fail    map[string]error
	flaky   map[string]int
	onFetch func(w window.Window)

	calls  []string
	limits []int
	since  []time.Time
}

func newFake(orders []domain.Order) *fakeUpstream {
	return &fakeUpstream{
		list:   50,
		bulk:   250,
		orders: orders,
		fail:   map[string]error{},
		flaky:  map[string]int{},
	}
}

func (f *fakeUpstream) ListLimit() int { return f.list }
func (f *fakeUpstream) BulkLimit() int { return f.bulk }

func (f *fakeUpstream) Fetch(_ context.Context, w window.Window, limit int) (domain.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, w.Label)
	f.limits = append(f.limits, limit)
	err := f.fail[w.Label]
	if n := f.flaky[w.Label]; n > 0 {
		f.flaky[w.Label] = n - 1
		err = &shopify.UpstreamError{StatusCode: 503, Body: "unavailable"}
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	if err != nil {
		return domain.FetchResult{}, err
	}

	var out []domain.Order
	for _, o := range f.orders {
		if w.Contains(o.CreatedAt) {
			out = append(out, o)
		}
	}
	return page(out, limit), nil
}

func (f *fakeUpstream) FetchSince(_ context.Context, since time.Time, limit int) (domain.FetchResult, error) {
	f.mu.Lock()
	f.since = append(f.since, since)
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	var out []domain.Order
	for _, o := range f.orders {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return page(out, limit), nil
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func page(orders []domain.Order, limit int) domain.FetchResult {
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return domain.FetchResult{Orders: orders, Count: len(orders), Limit: limit, Truncated: len(orders) >= limit}
}

type orderGen struct{ next int64 }

func (g *orderGen) at(hour, minute, second int) domain.Order {
	g.next++
	return domain.Order{
		ID:         g.next,
		Name:       fmt.Sprintf("#%d", 1000+g.next),
		CreatedAt:  time.Date(2025, 5, 6, hour, minute, second, 0, sydney),
		TotalPrice: domain.MustMoney("10.00"),
		Currency:   "AUD",
	}
}

// spreadDay builds 120 orders: 10 in the morning, 5 per business hour and
// 50 across the evening hours.
func spreadDay() []domain.Order {
	g := &orderGen{}
	var out []domain.Order
	for i := 0; i < 10; i++ {
		out = append(out, g.at(i%6, i, 0))
	}
	for i := 0; i < 60; i++ {
		out = append(out, g.at(6+i/5, (i%5)*10, 0))
	}
	for i := 0; i < 50; i++ {
		out = append(out, g.at(18+i%6, i, 30))
	}
	return out
}

func quietDay(n int) []domain.Order {
	g := &orderGen{}
	out := make([]domain.Order, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.at(i%24, i%60, 0))
	}
	return out
}

// busyHour puts n orders inside 10:00-10:59.
func busyHour(n int) []domain.Order {
	g := &orderGen{}
	out := make([]domain.Order, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.at(10, i%60, i/60))
	}
	return out
}

func newTestService(t *testing.T, up Upstream, c Cache, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithLocation(sydney),
		WithClock(func() time.Time { return testNow }),
		WithRetry(config.Retry{Attempts: 1}),
	}
	return NewService(up, c, zaptest.NewLogger(t), observability.NewInmem(100), append(base, opts...)...)
}

func reportLabels(reps []domain.WindowReport) []string {
	out := make([]string, 0, len(reps))
	for _, r := range reps {
		out = append(out, r.Label)
	}
	return out
}

func findReport(reps []domain.WindowReport, label string) (domain.WindowReport, bool) {
	for _, r := range reps {
		if r.Label == label {
			return r, true
		}
	}
	return domain.WindowReport{}, false
}

func orderIDs(orders []domain.Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
