package domain

import "maps"

// Built-in business code messages.
const (
	// MessageUnauthorized is shown for business code 401.
	MessageUnauthorized = "Authentication failed, unable to access system resources"

	// MessageForbidden is shown for business code 403.
	MessageForbidden = "You do not have permission to perform this operation"

	// MessageNotFound is shown for business code 404.
	MessageNotFound = "The requested resource does not exist"

	// MessageDefault is shown when neither the table nor the envelope has a message.
	MessageDefault = "Unknown system error, please contact the administrator"
)

// ErrorCodeTable maps business codes to display messages.
// A table is immutable once built and safe for concurrent use.
type ErrorCodeTable struct {
	messages map[int]string
	fallback string
}

// NewErrorCodeTable builds a table from messages and a default message.
// The map is copied. An empty fallback falls back to MessageDefault.
func NewErrorCodeTable(messages map[int]string, fallback string) *ErrorCodeTable {
	if fallback == "" {
		fallback = MessageDefault
	}

	copied := make(map[int]string, len(messages))
	for code, msg := range messages {
		if msg != "" {
			copied[code] = msg
		}
	}

	return &ErrorCodeTable{messages: copied, fallback: fallback}
}

// DefaultErrorCodeTable returns the built-in table.
func DefaultErrorCodeTable() *ErrorCodeTable {
	return NewErrorCodeTable(map[int]string{
		401: MessageUnauthorized,
		403: MessageForbidden,
		404: MessageNotFound,
	}, MessageDefault)
}

// Lookup returns the message registered for code.
func (t *ErrorCodeTable) Lookup(code int) (string, bool) {
	msg, ok := t.messages[code]
	return msg, ok
}

// Default returns the fallback message.
func (t *ErrorCodeTable) Default() string {
	return t.fallback
}

// Resolve picks the display message for a failing envelope:
// the table entry for code, else msg when non-empty, else the default.
func (t *ErrorCodeTable) Resolve(code int, msg string) string {
	if tableMsg, ok := t.Lookup(code); ok {
		return tableMsg
	}

	if msg != "" {
		return msg
	}

	return t.fallback
}

// With returns a new table with overrides applied on top of t.
// An empty fallback keeps t's default. t is not modified.
func (t *ErrorCodeTable) With(overrides map[int]string, fallback string) *ErrorCodeTable {
	merged := make(map[int]string, len(t.messages)+len(overrides))
	maps.Copy(merged, t.messages)
	maps.Copy(merged, overrides)

	if fallback == "" {
		fallback = t.fallback
	}

	return NewErrorCodeTable(merged, fallback)
}

// Len returns the number of registered codes.
func (t *ErrorCodeTable) Len() int {
	return len(t.messages)
}
