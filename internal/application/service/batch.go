package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/window"
)

type BatchRequest struct {
	Days   int
	Window string
	Force  bool
}

type DaySummary struct {
	Date        string `json:"date"`
	Count       int    `json:"count"`
	HasMaxLimit bool   `json:"hasMaxLimit"`
	Incomplete  bool   `json:"incomplete,omitempty"`
	FromCache   bool   `json:"fromCache"`
	Error       string `json:"error,omitempty"`
}

type BatchResult struct {
	Requested        int          `json:"requested"`
	Processed        int          `json:"processed"`
	TotalOrders      int          `json:"totalOrders"`
	DaysWithMaxLimit int          `json:"daysWithMaxLimit"`
	Failed           int          `json:"failed"`
	Cancelled        bool         `json:"cancelled"`
	Days             []DaySummary `json:"days"`
}

// Backfill retrieves req.Days dates, today first and then backwards, one at
// a time. Cancelling ctx stops the loop before the next date; the date in
// progress is completed. After every date fetched from upstream the loop
// waits the configured batch delay.
func (s *Service) Backfill(ctx context.Context, req BatchRequest, progress func(DaySummary)) (BatchResult, error) {
	days := req.Days
	if days < 1 {
		days = 1
	}
	out := BatchResult{Requested: days, Days: make([]DaySummary, 0, days)}
	today := s.now().In(s.loc)

	for i := 0; i < days; i++ {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		date := today.AddDate(0, 0, -i).Format(window.DateLayout)
		agg, err := s.Retrieve(context.WithoutCancel(ctx), Request{Date: date, Window: req.Window, Force: req.Force})

		sum := DaySummary{Date: date}
		if err != nil {
			sum.Error = err.Error()
			out.Failed++
			s.logger.Warn("backfill date failed", zap.String("date", date), zap.Error(err))
		} else {
			sum.Count = agg.Count
			sum.HasMaxLimit = agg.HasMaxLimit
			sum.Incomplete = agg.Incomplete
			sum.FromCache = agg.FromCache
			out.TotalOrders += agg.Count
			if agg.HasMaxLimit {
				out.DaysWithMaxLimit++
			}
		}
		out.Days = append(out.Days, sum)
		out.Processed++
		if progress != nil {
			progress(sum)
		}

		if i == days-1 || sum.FromCache {
			continue
		}
		if err := s.sleep(ctx, s.batchDelay); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				out.Cancelled = true
				break
			}
			return out, err
		}
	}

	s.logger.Info("Backfill finished",
		zap.Int("processed", out.Processed),
		zap.Int("total_orders", out.TotalOrders),
		zap.Int("days_with_max_limit", out.DaysWithMaxLimit),
		zap.Int("failed", out.Failed),
		zap.Bool("cancelled", out.Cancelled),
	)
	return out, nil
}
