package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/deliverydate"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/pkg/retry"
	"github.com/TemirB/shop-orders/internal/window"
)

const unknownVendor = "Unknown"

// Deliveries returns the orders whose delivery-date note attribute falls on
// date, looking back lookbackDays of order creation with one bulk call.
// Orders whose attribute cannot be parsed are left out.
func (s *Service) Deliveries(ctx context.Context, date string, force bool) (domain.DeliveryResult, error) {
	if _, err := window.ParseDate(date, s.loc); err != nil {
		return domain.DeliveryResult{}, err
	}
	key := window.DeliveryKey(date)

	if !force {
		e, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("cache read failed, fetching from upstream", zap.String("key", key), zap.Error(err))
		} else if ok {
			out := summarize(date, e.Orders)
			out.HasMaxLimit = e.HasMaxLimit
			out.FromCache = true
			return out, nil
		}
	}

	since := s.now().In(s.loc).AddDate(0, 0, -s.lookbackDays)
	callCtx := context.WithoutCancel(ctx)
	var res domain.FetchResult
	err := retry.Do(ctx, s.retryPolicy, func() error {
		r, err := s.upstream.FetchSince(callCtx, since, s.upstream.BulkLimit())
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		res = r
		return nil
	})
	if err != nil {
		s.logger.Error("Can't fetch orders for delivery lookup", zap.String("date", date), zap.Error(err))
		return domain.DeliveryResult{}, err
	}

	matched := make([]domain.Order, 0)
	for _, o := range res.Orders {
		if deliverydate.Matches(o, date) {
			matched = append(matched, o)
		}
	}

	out := summarize(date, matched)
	out.HasMaxLimit = res.Truncated
	s.put(ctx, key, domain.CacheEntry{
		Count:       out.Count,
		HasMaxLimit: out.HasMaxLimit,
		Orders:      matched,
		FetchedAt:   s.stamp(),
	})

	s.logger.Info("Delivery orders resolved",
		zap.String("date", date),
		zap.Int("scanned", res.Count),
		zap.Int("count", out.Count),
		zap.Bool("has_max_limit", out.HasMaxLimit),
	)
	return out, nil
}

// summarize totals orders and groups their line items by vendor and then by
// product, keeping the names of the orders that need each product.
func summarize(date string, orders []domain.Order) domain.DeliveryResult {
	if orders == nil {
		orders = []domain.Order{}
	}
	out := domain.DeliveryResult{
		Date:    date,
		Count:   len(orders),
		Total:   decimal.Zero,
		Vendors: []domain.VendorSupply{},
		Orders:  orders,
	}

	type itemKey struct{ title, sku string }
	vendors := map[string]map[itemKey]*domain.SupplyItem{}
	for _, o := range orders {
		out.Total = out.Total.Add(o.TotalPrice.Decimal())
		for _, li := range o.LineItems {
			v := li.Vendor
			if v == "" {
				v = unknownVendor
			}
			items, ok := vendors[v]
			if !ok {
				items = map[itemKey]*domain.SupplyItem{}
				vendors[v] = items
			}
			k := itemKey{li.Title, li.SKU}
			it, ok := items[k]
			if !ok {
				it = &domain.SupplyItem{Title: li.Title, SKU: li.SKU}
				items[k] = it
			}
			it.Quantity += li.Quantity
			if n := len(it.Orders); n == 0 || it.Orders[n-1] != o.Name {
				it.Orders = append(it.Orders, o.Name)
			}
		}
	}

	for name, items := range vendors {
		vs := domain.VendorSupply{Vendor: name}
		for _, it := range items {
			vs.Quantity += it.Quantity
			vs.Items = append(vs.Items, *it)
		}
		sort.Slice(vs.Items, func(i, j int) bool {
			if vs.Items[i].Title == vs.Items[j].Title {
				return vs.Items[i].SKU < vs.Items[j].SKU
			}
			return vs.Items[i].Title < vs.Items[j].Title
		})
		out.Vendors = append(out.Vendors, vs)
	}
	sort.Slice(out.Vendors, func(i, j int) bool { return out.Vendors[i].Vendor < out.Vendors[j].Vendor })
	return out
}
