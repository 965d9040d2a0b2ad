package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingDate = errors.New("date parameter is required")
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

// FetchResult is the outcome of a single upstream call for one window.
type FetchResult struct {
	Orders    []Order
	Count     int
	Limit     int
	Truncated bool
}

// WindowReport records what happened to one window of a recursive expansion.
type WindowReport struct {
	Label     string    `json:"label"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Depth     int       `json:"depth"`
	Raw       int       `json:"raw"`
	New       int       `json:"new"`
	Truncated bool      `json:"truncated"`
	Split     bool      `json:"split,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Aggregate is the deduplicated result for one date and window selector.
type Aggregate struct {
	Date               string         `json:"date"`
	Window             string         `json:"window"`
	Count              int            `json:"count"`
	HasMaxLimit        bool           `json:"hasMaxLimit"`
	ChunksWithMaxLimit int            `json:"chunksWithMaxLimit"`
	Incomplete         bool           `json:"incomplete"`
	FromCache          bool           `json:"fromCache"`
	FetchedAt          time.Time      `json:"fetchedAt"`
	Windows            []WindowReport `json:"windows,omitempty"`
	Orders             []Order        `json:"orders"`
}

// CacheEntry is the persisted value for one cache key.
type CacheEntry struct {
	Count              int       `json:"count"`
	HasMaxLimit        bool      `json:"hasMaxLimit"`
	ChunksWithMaxLimit int       `json:"chunksWithMaxLimit,omitempty"`
	Orders             []Order   `json:"orders"`
	FetchedAt          time.Time `json:"fetchedAt"`
}

type CacheMetadata struct {
	LastUpdated *time.Time `json:"lastUpdated"`
	DaysCached  int        `json:"daysCached"`
	CacheSize   int64      `json:"cacheSize"`
}

// DeliveryResult lists the orders due for delivery on Date and what each
// vendor has to supply for them.
type DeliveryResult struct {
	Date        string          `json:"date"`
	Count       int             `json:"count"`
	HasMaxLimit bool            `json:"hasMaxLimit"`
	FromCache   bool            `json:"fromCache"`
	Total       decimal.Decimal `json:"total"`
	Vendors     []VendorSupply  `json:"vendors"`
	Orders      []Order         `json:"orders"`
}

type VendorSupply struct {
	Vendor   string       `json:"vendor"`
	Quantity int          `json:"quantity"`
	Items    []SupplyItem `json:"items"`
}

type SupplyItem struct {
	Title    string   `json:"title"`
	SKU      string   `json:"sku,omitempty"`
	Quantity int      `json:"quantity"`
	Orders   []string `json:"orders"`
}

// FetchEvent is published after a date has been retrieved from upstream.
type FetchEvent struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Window      string    `json:"window"`
	Count       int       `json:"count"`
	HasMaxLimit bool      `json:"hasMaxLimit"`
	Incomplete  bool      `json:"incomplete"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// RefreshRequest asks the service to re-fetch a date, bypassing the cache.
type RefreshRequest struct {
	Date   string `json:"date"`
	Window string `json:"window,omitempty"`
}
