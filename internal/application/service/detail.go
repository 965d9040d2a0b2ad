package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/dedup"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/window"
)

// DayDetail lists a whole day with a single bulk call. It never splits: a
// capped result is reported through HasMaxLimit.
func (s *Service) DayDetail(ctx context.Context, date string, force bool) (domain.Aggregate, error) {
	day, err := window.ParseDate(date, s.loc)
	if err != nil {
		return domain.Aggregate{}, err
	}
	key := window.DetailKey(date)

	if !force {
		e, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("cache read failed, fetching from upstream", zap.String("key", key), zap.Error(err))
		} else if ok {
			return fromEntry(date, window.Full, e), nil
		}
	}

	w := window.Day(day)
	t0 := time.Now()
	run := &expansion{seen: dedup.New()}
	res, err := s.fetchWindow(ctx, run, w, s.upstream.BulkLimit())
	if err != nil {
		s.logger.Error("Can't fetch day detail", zap.String("date", date), zap.Error(err))
		return domain.Aggregate{}, err
	}
	run.seen.Accumulate(res)

	capped := 0
	if res.Truncated {
		capped = 1
		s.logger.Warn("day detail hit the bulk limit",
			zap.String("date", date),
			zap.Int("limit", res.Limit),
		)
	}

	agg := domain.Aggregate{
		Date:               date,
		Window:             window.Full,
		Count:              run.seen.Len(),
		HasMaxLimit:        res.Truncated,
		ChunksWithMaxLimit: capped,
		FetchedAt:          s.stamp(),
		Windows: []domain.WindowReport{{
			Label:     w.Label,
			Start:     w.Start,
			End:       w.End,
			Raw:       res.Count,
			New:       run.seen.Len(),
			Truncated: res.Truncated,
		}},
		Orders: run.seen.Orders(),
	}
	s.put(ctx, key, domain.CacheEntry{
		Count:              agg.Count,
		HasMaxLimit:        agg.HasMaxLimit,
		ChunksWithMaxLimit: agg.ChunksWithMaxLimit,
		Orders:             agg.Orders,
		FetchedAt:          agg.FetchedAt,
	})

	s.metrics.ObserveRetrieve(string(SourceUpstream), 0, convertToMs(t0))
	s.logger.Info("Day detail fetched",
		zap.String("date", date),
		zap.Int("count", agg.Count),
		zap.Bool("has_max_limit", agg.HasMaxLimit),
	)
	return agg, nil
}
