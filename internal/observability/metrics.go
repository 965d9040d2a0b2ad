package observability

type Metrics interface {
	ObserveFetch(window string, durMs float64, count int, truncated bool, err error)
	ObserveRetrieve(source string, cacheMs, upstreamMs float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveKafka(processMs float64, ok bool)
	IncCacheHit()
	IncCacheMiss()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveFetch(string, float64, int, bool, error) {}
func (Noop) ObserveRetrieve(string, float64, float64)       {}
func (Noop) ObserveHTTP(string, string, int, float64)       {}
func (Noop) ObserveKafka(float64, bool)                     {}
func (Noop) IncCacheHit()                                   {}
func (Noop) IncCacheMiss()                                  {}
