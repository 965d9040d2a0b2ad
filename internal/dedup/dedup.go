// Package dedup collapses repeated sightings of the same order across the
// windows fetched for one date.
package dedup

import (
	"sync"

	"github.com/TemirB/shop-orders/internal/domain"
)

// Deduplicator keeps the first sighting of every order identifier.
// Accumulating the same identifier again is a no-op, so the final set does not
// depend on the order in which windows are fed in. Safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[int64]struct{}
	orders []domain.Order
	raw    int
}

func New() *Deduplicator {
	return &Deduplicator{seen: make(map[int64]struct{})}
}

// Accumulate adds the orders of one fetch and returns how many of them had
// not been seen before.
func (d *Deduplicator) Accumulate(res domain.FetchResult) int {
	return d.Add(res.Orders)
}

func (d *Deduplicator) Add(orders []domain.Order) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := 0
	for _, o := range orders {
		d.raw++
		if _, ok := d.seen[o.ID]; ok {
			continue
		}
		d.seen[o.ID] = struct{}{}
		d.orders = append(d.orders, o)
		fresh++
	}
	return fresh
}

// Seen reports whether id has been accumulated.
func (d *Deduplicator) Seen(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Len is the number of unique orders.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.orders)
}

// Raw is the number of orders fed in, duplicates included.
func (d *Deduplicator) Raw() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw
}

// Orders returns the unique orders in first-seen order.
func (d *Deduplicator) Orders() []domain.Order {
	return d.Filter(nil)
}

// Filter returns the unique orders accepted by keep. A nil keep accepts all.
func (d *Deduplicator) Filter(keep func(domain.Order) bool) []domain.Order {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.Order, 0, len(d.orders))
	for _, o := range d.orders {
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	return out
}
