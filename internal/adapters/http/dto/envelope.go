// Package dto holds the JSON bodies the gateway writes.
package dto

// Failure is the body written for any failed gateway call. It mirrors the
// backend envelope so clients normalise gateway and backend answers the same way.
type Failure struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	TraceID string `json:"traceId,omitempty"`
}

// NewFailure creates a failure body.
func NewFailure(code int, msg string) *Failure {
	return &Failure{Code: code, Msg: msg}
}

// WithTraceID sets the trace ID and returns f for chaining.
func (f *Failure) WithTraceID(traceID string) *Failure {
	f.TraceID = traceID
	return f
}
