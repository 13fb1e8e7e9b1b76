// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types or raw payloads, never transport types
//   - Error returns use domain failure types (ApplicationError, TransportError)
//   - Keep interfaces small and focused
package ports

import (
	"context"
	"encoding/json"
	"net/url"
)

// Gateway fetches payloads from the barrage-fly backend.
//
// Implementations unwrap the response envelope: the returned payload is the
// envelope's data field, never the envelope itself.
type Gateway interface {
	// Fetch performs a GET on path with the given query.
	// Returns a *domain.ApplicationError when the backend answers with a non-200
	// business code, and the transport error unchanged otherwise.
	Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}
