package observability

import "sync"

type observe struct {
	Kind       string  `json:"kind"`
	Source     string  `json:"source,omitempty"`
	Window     string  `json:"window,omitempty"`
	Method     string  `json:"method,omitempty"`
	Route      string  `json:"route,omitempty"`
	Status     int     `json:"status,omitempty"`
	Count      int     `json:"count,omitempty"`
	Truncated  bool    `json:"truncated,omitempty"`
	OK         bool    `json:"ok,omitempty"`
	Error      string  `json:"error,omitempty"`
	CacheMs    float64 `json:"cacheMs,omitempty"`
	UpstreamMs float64 `json:"upstreamMs,omitempty"`
	DurMs      float64 `json:"durMs,omitempty"`
}

type Totals struct {
	CacheHits        int `json:"cacheHits"`
	CacheMisses      int `json:"cacheMisses"`
	Fetches          int `json:"fetches"`
	FetchErrors      int `json:"fetchErrors"`
	TruncatedFetches int `json:"truncatedFetches"`
	Retrievals       int `json:"retrievals"`
	HTTPRequests     int `json:"httpRequests"`
	KafkaProcessed   int `json:"kafkaProcessed"`
	KafkaFailed      int `json:"kafkaFailed"`
}

type Stats struct {
	Totals Totals     `json:"totals"`
	Recent []*observe `json:"recent"`
}

// Inmem keeps running totals and the last max observations.
type Inmem struct {
	mu     sync.Mutex
	last   []*observe
	max    int
	totals Totals
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v *observe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[1:]
	}
}

func (m *Inmem) ObserveFetch(window string, durMs float64, count int, truncated bool, err error) {
	o := &observe{Kind: "fetch", Window: window, DurMs: durMs, Count: count, Truncated: truncated, OK: err == nil}
	if err != nil {
		o.Error = err.Error()
	}
	m.mu.Lock()
	m.totals.Fetches++
	if err != nil {
		m.totals.FetchErrors++
	}
	if truncated {
		m.totals.TruncatedFetches++
	}
	m.mu.Unlock()
	m.push(o)
}

func (m *Inmem) ObserveRetrieve(source string, cacheMs, upstreamMs float64) {
	m.mu.Lock()
	m.totals.Retrievals++
	m.mu.Unlock()
	m.push(&observe{Kind: "retrieve", Source: source, CacheMs: cacheMs, UpstreamMs: upstreamMs})
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.mu.Lock()
	m.totals.HTTPRequests++
	m.mu.Unlock()
	m.push(&observe{Kind: "http", Method: method, Route: route, Status: status, DurMs: durMs})
}

func (m *Inmem) ObserveKafka(processMs float64, ok bool) {
	m.mu.Lock()
	if ok {
		m.totals.KafkaProcessed++
	} else {
		m.totals.KafkaFailed++
	}
	m.mu.Unlock()
	m.push(&observe{Kind: "kafka", DurMs: processMs, OK: ok})
}

func (m *Inmem) IncCacheHit() {
	m.mu.Lock()
	m.totals.CacheHits++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheMiss() {
	m.mu.Lock()
	m.totals.CacheMisses++
	m.mu.Unlock()
}

// Snapshot copies the totals and the recent observations.
func (m *Inmem) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := make([]*observe, len(m.last))
	copy(recent, m.last)
	return Stats{Totals: m.totals, Recent: recent}
}
