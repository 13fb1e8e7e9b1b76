// Package domain contains the response envelope contract, the business error-code table
// and the failure types produced while normalising backend responses.
// Domain errors are infrastructure-agnostic; adapters decide how to surface them.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrApplication indicates the backend answered with a business code other than 200.
	ErrApplication = errors.New("application failure")

	// ErrTransport indicates the request failed below the envelope: network, timeout or non-2xx status.
	ErrTransport = errors.New("transport failure")

	// ErrMalformedEnvelope indicates the body looked like an envelope but its code could not be read.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// ApplicationError is a business-level failure reported inside a well-formed response.
//
// Error returns the resolved display message and nothing else, so callers that only
// care about "the message" can use err.Error() directly.
type ApplicationError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ApplicationError) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ApplicationError) Unwrap() error {
	return ErrApplication
}

// NewApplicationError creates an application error for a business code.
func NewApplicationError(code int, message string) error {
	return &ApplicationError{Code: code, Message: message}
}

// TransportError wraps a failure raised by the HTTP layer.
type TransportError struct {
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause == nil {
		return ErrTransport.Error()
	}

	return e.Cause.Error()
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransport}
	}

	return []error{ErrTransport, e.Cause}
}

// NewTransportError wraps cause as a transport failure.
func NewTransportError(cause error) error {
	return &TransportError{Cause: cause}
}

// FailureKind tells application and transport failures apart.
type FailureKind int

const (
	// FailureNone is reported for a nil error.
	FailureNone FailureKind = iota

	// FailureApplication is a non-200 business code.
	FailureApplication

	// FailureTransport is anything else: the request never produced a usable envelope.
	FailureTransport
)

// String returns a human-readable name for the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureApplication:
		return "application"
	case FailureTransport:
		return "transport"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Classify reports which kind of failure err is.
// Errors that are not application failures are treated as transport failures,
// since the normaliser passes transport errors through untouched.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrApplication):
		return FailureApplication
	default:
		return FailureTransport
	}
}

// RejectionValue converts a failure into the value script-style callers expect:
// the bare message string for application failures and the original error otherwise.
func RejectionValue(err error) any {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message
	}

	return err
}

// IsApplication checks if an error is an application failure.
func IsApplication(err error) bool {
	return errors.Is(err, ErrApplication)
}

// IsTransport checks if an error was explicitly marked as a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
