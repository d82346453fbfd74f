package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnauthorized marks a 401 from the control plane. It is never retried
// and terminates the run.
var ErrUnauthorized = errors.New("unauthorized")

// HTTPError is a non-2xx response. Status and a bounded copy of the body are
// kept for diagnostics.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("control plane returned %d: %s", e.Status, e.Body)
}

// retryable classifies an error for the retry policy: 5xx responses and
// transport-level failures (timeouts, resets, DNS) are transient; other
// HTTP statuses are permanent.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	// Connection resets and similar transport failures arrive as wrapped
	// *url.Error values without a stable sentinel.
	return true
}
