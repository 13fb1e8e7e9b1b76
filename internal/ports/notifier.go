package ports

import (
	"context"
	"fmt"
	"strings"
)

// Notifier is the user-facing notification surface (a toast or snackbar in a UI,
// a styled line on a terminal, a log record on a headless host).
//
// Error is fire-and-forget: implementations must return promptly and must not
// fail the request that triggered them.
type Notifier interface {
	Error(ctx context.Context, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message string)

// Error calls f(ctx, message).
func (f NotifierFunc) Error(ctx context.Context, message string) {
	f(ctx, message)
}

// ExecutionContext tells whether the process is running next to a user who can see
// notifications (client) or on a host that only relays responses (server).
type ExecutionContext int

const (
	// ExecutionServer runs headless. Failures propagate silently.
	ExecutionServer ExecutionContext = iota

	// ExecutionClient runs in front of a user. Failures are also shown through the Notifier.
	ExecutionClient
)

// String returns the configuration spelling of the context.
func (e ExecutionContext) String() string {
	switch e {
	case ExecutionServer:
		return "server"
	case ExecutionClient:
		return "client"
	default:
		return fmt.Sprintf("ExecutionContext(%d)", int(e))
	}
}

// IsClient reports whether notifications should be shown.
func (e ExecutionContext) IsClient() bool {
	return e == ExecutionClient
}

// ParseExecutionContext converts "client" or "server" (case-insensitive) to an ExecutionContext.
func ParseExecutionContext(s string) (ExecutionContext, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return ExecutionClient, nil
	case "server":
		return ExecutionServer, nil
	default:
		return ExecutionServer, fmt.Errorf("unknown execution context %q", s)
	}
}
