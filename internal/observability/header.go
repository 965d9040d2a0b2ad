package observability

import (
	"fmt"
	"net/http"
	"strings"
)

// Timing collects Server-Timing metrics for one response.
type Timing struct {
	parts []string
}

// Add records a metric. Metrics with neither a positive duration nor a
// description are left out.
func (t *Timing) Add(name string, durMs float64, desc string) *Timing {
	var b strings.Builder
	b.WriteString(name)
	if durMs > 0 {
		fmt.Fprintf(&b, ";dur=%.2f", durMs)
	}
	if desc != "" {
		fmt.Fprintf(&b, ";desc=%q", desc)
	}
	if durMs <= 0 && desc == "" {
		return t
	}
	t.parts = append(t.parts, b.String())
	return t
}

// Write sets the Server-Timing header. It does nothing when no metric was
// recorded and must be called before the body is written.
func (t *Timing) Write(w http.ResponseWriter) {
	if len(t.parts) == 0 {
		return
	}
	w.Header().Set("Server-Timing", strings.Join(t.parts, ", "))
}

// SetMillis sets key to ms with two decimals when ms is positive.
func SetMillis(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, fmt.Sprintf("%.2f", ms))
	}
}
