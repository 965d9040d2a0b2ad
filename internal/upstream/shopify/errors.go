package shopify

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/TemirB/shop-orders/internal/pkg/breaker"
)

// UpstreamError is any failed call to the admin API. StatusCode is 0 when no
// HTTP response was received (timeout, connection refused).
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.BreakerOpen():
		return "shopify: circuit breaker open, request not sent"
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("shopify: request failed: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("shopify: HTTP %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("shopify: HTTP %d: %s", e.StatusCode, e.Body)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// BreakerOpen is true when the local breaker refused the call, so the API
// never answered.
func (e *UpstreamError) BreakerOpen() bool {
	return errors.Is(e.Err, breaker.ErrOpenState)
}

// IsRetryable is true for transport failures, 429 and 5xx. An open breaker
// is not retried.
func (e *UpstreamError) IsRetryable() bool {
	if e.BreakerOpen() {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Status is the status to surface to callers, 502 when none was received.
func (e *UpstreamError) Status() int {
	if e.StatusCode == 0 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

// AsUpstream unwraps err into an UpstreamError if it holds one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRetryable reports whether err is an UpstreamError worth another attempt.
func IsRetryable(err error) bool {
	ue, ok := AsUpstream(err)
	return ok && ue.IsRetryable()
}
