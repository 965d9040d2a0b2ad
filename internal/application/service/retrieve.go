package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/dedup"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/pkg/pool"
	"github.com/TemirB/shop-orders/internal/pkg/retry"
	"github.com/TemirB/shop-orders/internal/window"
)

type Request struct {
	Date   string
	Window string
	Force  bool
}

func (r Request) selector() string {
	if r.Window == "" {
		return window.Full
	}
	return r.Window
}

// expansion is the state of one recursive retrieval: every fetched window
// feeds the same Deduplicator.
type expansion struct {
	seen    *dedup.Deduplicator
	reports []domain.WindowReport
	fetched []window.Window
	capped  []window.Window
	failed  []window.Window
	calls   atomic.Int32
}

type outcome struct {
	res     domain.FetchResult
	err     error
	skipped bool
}

func (s *Service) Retrieve(ctx context.Context, req Request) (domain.Aggregate, error) {
	agg, _, err := s.RetrieveWithStats(ctx, req)
	return agg, err
}

// RetrieveWithStats returns the orders created on req.Date inside the
// selected window. A cached aggregate is returned as is unless req.Force is
// set. Otherwise the window is fetched and, while results come back capped,
// narrowed day -> quadrant -> hour. Failures below the root window are
// recorded on the aggregate instead of failing the call.
func (s *Service) RetrieveWithStats(ctx context.Context, req Request) (domain.Aggregate, LookupStats, error) {
	var st LookupStats

	root, err := window.Resolve(req.Date, req.Window, s.loc)
	if err != nil {
		return domain.Aggregate{}, st, err
	}
	selector := req.selector()
	key := window.CacheKey(req.Date, selector)

	if !req.Force {
		t0 := time.Now()
		e, ok, err := s.cache.Get(ctx, key)
		st.CacheMs = convertToMs(t0)
		switch {
		case err != nil:
			s.logger.Warn("cache read failed, fetching from upstream",
				zap.String("key", key),
				zap.Error(err),
			)
		case ok:
			st.Source = SourceCache
			s.metrics.ObserveRetrieve(string(st.Source), st.CacheMs, 0)
			s.logger.Info("Orders fetched from cache",
				zap.String("date", req.Date),
				zap.String("window", selector),
				zap.Int("count", e.Count),
				zap.Float64("cache_ms", st.CacheMs),
			)
			return fromEntry(req.Date, selector, e), st, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.Aggregate{}, st, err
	}

	t1 := time.Now()
	run := &expansion{seen: dedup.New()}
	depth := int(root.Level)

	res, err := s.fetchWindow(ctx, run, root, s.upstream.ListLimit())
	if err != nil {
		st.UpstreamMs = convertToMs(t1)
		st.Calls = int(run.calls.Load())
		s.logger.Error("Can't fetch orders",
			zap.String("date", req.Date),
			zap.String("window", selector),
			zap.Error(err),
		)
		return domain.Aggregate{}, st, err
	}
	s.accept(ctx, run, root, depth, res, newReport(root, depth))

	agg := domain.Aggregate{
		Date:               req.Date,
		Window:             selector,
		Count:              run.seen.Len(),
		HasMaxLimit:        len(run.capped) > 0,
		ChunksWithMaxLimit: len(run.capped),
		Incomplete:         len(run.failed) > 0,
		FetchedAt:          s.stamp(),
		Windows:            run.reports,
		Orders:             run.seen.Orders(),
	}

	st.Source = SourceUpstream
	st.UpstreamMs = convertToMs(t1)
	st.Calls = int(run.calls.Load())

	s.writeThrough(ctx, key, root, run, agg)
	s.publish(ctx, agg)

	s.metrics.ObserveRetrieve(string(st.Source), st.CacheMs, st.UpstreamMs)
	s.logger.Info("Orders fetched from upstream",
		zap.String("date", req.Date),
		zap.String("window", selector),
		zap.Int("count", agg.Count),
		zap.Int("raw", run.seen.Raw()),
		zap.Int("calls", st.Calls),
		zap.Bool("has_max_limit", agg.HasMaxLimit),
		zap.Bool("incomplete", agg.Incomplete),
		zap.Float64("upstream_ms", st.UpstreamMs),
	)
	return agg, st, nil
}

// accept records a successful fetch of w and splits w one level further when
// the result was capped. depth never goes past window.MaxDepth; a window
// still capped there is counted as a max-limit chunk.
func (s *Service) accept(ctx context.Context, run *expansion, w window.Window, depth int, res domain.FetchResult, rep domain.WindowReport) {
	rep.Raw = res.Count
	rep.Truncated = res.Truncated
	rep.New = run.seen.Accumulate(res)
	run.fetched = append(run.fetched, w)

	if !res.Truncated {
		run.reports = append(run.reports, rep)
		return
	}

	var children []window.Window
	var err error
	if depth < window.MaxDepth {
		children, err = window.Split(w)
	}
	if depth >= window.MaxDepth || err != nil {
		run.capped = append(run.capped, w)
		run.reports = append(run.reports, rep)
		s.logger.Warn("window still truncated at finest granularity",
			zap.String("window", w.Label),
			zap.Time("start", w.Start),
			zap.Int("count", res.Count),
			zap.Int("limit", res.Limit),
		)
		return
	}

	rep.Split = true
	run.reports = append(run.reports, rep)
	s.logger.Debug("window truncated, splitting",
		zap.String("window", w.Label),
		zap.Int("count", res.Count),
		zap.Int("children", len(children)),
	)

	outcomes := s.fetchAll(ctx, run, children)
	for i, c := range children {
		s.settle(ctx, run, c, depth+1, outcomes[i])
	}
}

func (s *Service) settle(ctx context.Context, run *expansion, w window.Window, depth int, o outcome) {
	rep := newReport(w, depth)
	switch {
	case o.skipped:
		rep.Skipped = true
		run.failed = append(run.failed, w)
		run.reports = append(run.reports, rep)
	case o.err != nil:
		rep.Error = o.err.Error()
		run.failed = append(run.failed, w)
		run.reports = append(run.reports, rep)
		s.logger.Warn("window fetch failed, continuing with siblings",
			zap.String("window", w.Label),
			zap.Time("start", w.Start),
			zap.Error(o.err),
		)
	default:
		s.accept(ctx, run, w, depth, o.res, rep)
	}
}

// fetchAll fetches sibling windows, in order or on a bounded pool. Windows
// not yet started when ctx is cancelled are skipped.
func (s *Service) fetchAll(ctx context.Context, run *expansion, ws []window.Window) []outcome {
	out := make([]outcome, len(ws))
	for i := range out {
		out[i].skipped = true
	}
	one := func(ctx context.Context, i int) {
		if ctx.Err() != nil {
			return
		}
		out[i].skipped = false
		out[i].res, out[i].err = s.fetchWindow(ctx, run, ws[i], s.upstream.ListLimit())
	}

	if s.fetchWorkers <= 1 || len(ws) < 2 {
		for i := range ws {
			one(ctx, i)
		}
		return out
	}

	n := s.fetchWorkers
	if n > len(ws) {
		n = len(ws)
	}
	p := pool.New(ctx, n)
	for i := range ws {
		i := i
		p.Submit(func(ctx context.Context) { one(ctx, i) })
	}
	if dropped := p.Wait(); dropped > 0 {
		s.logger.Debug("windows dropped after cancellation", zap.Int("dropped", dropped))
	}
	return out
}

// fetchWindow calls upstream for w, retrying transient failures. The call
// itself runs detached from ctx so a fetch that has started is allowed to
// finish; the client's own timeout bounds it.
func (s *Service) fetchWindow(ctx context.Context, run *expansion, w window.Window, limit int) (domain.FetchResult, error) {
	callCtx := context.WithoutCancel(ctx)
	var res domain.FetchResult
	err := retry.Do(ctx, s.retryPolicy, func() error {
		run.calls.Add(1)
		r, err := s.upstream.Fetch(callCtx, w, limit)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		res = r
		return nil
	})
	return res, err
}

// writeThrough stores the root aggregate and one entry per fetched
// sub-window. A sub-window entry holds the unique orders created inside it,
// whichever fetch returned them. Anything with a failed or skipped window
// beneath it is not stored.
func (s *Service) writeThrough(ctx context.Context, key string, root window.Window, run *expansion, agg domain.Aggregate) {
	if agg.Incomplete {
		s.logger.Warn("aggregate incomplete, not caching",
			zap.String("key", key),
			zap.Int("failed_windows", len(run.failed)),
		)
	} else {
		s.put(ctx, key, domain.CacheEntry{
			Count:              agg.Count,
			HasMaxLimit:        agg.HasMaxLimit,
			ChunksWithMaxLimit: agg.ChunksWithMaxLimit,
			Orders:             agg.Orders,
			FetchedAt:          agg.FetchedAt,
		})
	}

	for _, w := range run.fetched {
		if w == root || anyWithin(run.failed, w) {
			continue
		}
		orders := run.seen.Filter(func(o domain.Order) bool { return w.Contains(o.CreatedAt) })
		capped := countWithin(run.capped, w)
		s.put(ctx, window.CacheKey(agg.Date, w.Label), domain.CacheEntry{
			Count:              len(orders),
			HasMaxLimit:        capped > 0,
			ChunksWithMaxLimit: capped,
			Orders:             orders,
			FetchedAt:          agg.FetchedAt,
		})
	}
}

func (s *Service) put(ctx context.Context, key string, e domain.CacheEntry) {
	if err := s.cache.Put(ctx, key, e); err != nil {
		s.logger.Warn("cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, agg domain.Aggregate) {
	if s.publisher == nil {
		return
	}
	ev := domain.FetchEvent{
		ID:          uuid.NewString(),
		Date:        agg.Date,
		Window:      agg.Window,
		Count:       agg.Count,
		HasMaxLimit: agg.HasMaxLimit,
		Incomplete:  agg.Incomplete,
		FetchedAt:   agg.FetchedAt,
	}
	if err := s.publisher.PublishFetch(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("publish fetch event failed",
			zap.String("date", agg.Date),
			zap.Error(err),
		)
	}
}

func within(inner, outer window.Window) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

func anyWithin(ws []window.Window, outer window.Window) bool {
	return countWithin(ws, outer) > 0
}

func countWithin(ws []window.Window, outer window.Window) int {
	n := 0
	for _, w := range ws {
		if within(w, outer) {
			n++
		}
	}
	return n
}

func newReport(w window.Window, depth int) domain.WindowReport {
	return domain.WindowReport{
		Label: w.Label,
		Start: w.Start,
		End:   w.End,
		Depth: depth,
	}
}

func fromEntry(date, selector string, e domain.CacheEntry) domain.Aggregate {
	orders := e.Orders
	if orders == nil {
		orders = []domain.Order{}
	}
	return domain.Aggregate{
		Date:               date,
		Window:             selector,
		Count:              e.Count,
		HasMaxLimit:        e.HasMaxLimit,
		ChunksWithMaxLimit: e.ChunksWithMaxLimit,
		FromCache:          true,
		FetchedAt:          e.FetchedAt,
		Orders:             orders,
	}
}
