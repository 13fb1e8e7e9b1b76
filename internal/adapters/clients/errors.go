// Package clients provides the instrumented HTTP client used to reach the backend.
package clients

import (
	"errors"
	"fmt"
	"net/http"
)

// Infrastructure failures raised before a response is available.
var (
	// ErrCircuitOpen is returned while the breaker blocks calls to an unhealthy backend.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last network error once every attempt failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrResponseTooLarge is returned when a body exceeds Config.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")
)

// StatusError is the failure for a response with a non-2xx status.
// The buffered response travels with it so failure interceptors can read the body.
type StatusError struct {
	Response *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.Response.StatusCode)
}

// ResponseFromError returns the response carried by err, or nil when the request
// never produced one (network failure, timeout, open circuit).
func ResponseFromError(err error) *Response {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Response
	}

	return nil
}

// IsServerError reports whether status is a 5xx.
func IsServerError(status int) bool {
	return status >= http.StatusInternalServerError
}
