package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CodeSuccess is the business code of a successful envelope.
const CodeSuccess = 200

// Envelope is the wrapper every backend reply arrives in:
//
//	{"code": 200, "data": ..., "msg": "..."}
//
// All fields are optional. Code and Msg are pointers so "absent" stays distinguishable
// from a zero value.
type Envelope struct {
	Code *int
	Data json.RawMessage
	Msg  *string
}

// wireEnvelope is the raw JSON shape before the code is validated.
type wireEnvelope struct {
	Code json.RawMessage `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  json.RawMessage `json:"msg"`
}

// ParseEnvelope reads a response body into an Envelope.
//
// Rules:
//   - A body that is not a JSON object is not an envelope. It is returned as Data
//     with no code, so it unwraps as a success carrying the body unchanged.
//   - code may be a JSON number or a numeric string. null, 0, false and "" count as absent.
//   - msg is only kept when it is a JSON string.
//
// A code that is present but not numeric yields ErrMalformedEnvelope; the returned
// Envelope still carries Data and Msg.
func ParseEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{Data: json.RawMessage(body)}, nil
	}

	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Envelope{Data: json.RawMessage(body)}, nil //nolint:nilerr // non-JSON bodies pass through as data
	}

	env := Envelope{Data: wire.Data}

	if len(wire.Msg) > 0 {
		var msg string
		if err := json.Unmarshal(wire.Msg, &msg); err == nil {
			env.Msg = &msg
		}
	}

	code, present, err := parseCode(wire.Code)
	if err != nil {
		return env, err
	}

	if present {
		env.Code = &code
	}

	return env, nil
}

// parseCode decodes the raw code field. present is false for absent or falsy values.
func parseCode(raw json.RawMessage) (code int, present bool, err error) {
	text := strings.TrimSpace(string(raw))

	switch text {
	case "", "null", "false", `""`, "0":
		return 0, false, nil
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, fmt.Errorf("%w: code %s", ErrMalformedEnvelope, text)
		}

		text = strings.TrimSpace(s)
		if text == "" {
			return 0, false, nil
		}
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n != float64(int(n)) {
		return 0, false, fmt.Errorf("%w: code %s", ErrMalformedEnvelope, text)
	}

	if n == 0 {
		return 0, false, nil
	}

	return int(n), true, nil
}

// StatusCode returns the business code, defaulting to CodeSuccess when absent.
func (e Envelope) StatusCode() int {
	if e.Code == nil || *e.Code == 0 {
		return CodeSuccess
	}

	return *e.Code
}

// Message returns msg, or an empty string when absent.
func (e Envelope) Message() string {
	if e.Msg == nil {
		return ""
	}

	return *e.Msg
}

// Succeeded reports whether the envelope carries a success code.
func (e Envelope) Succeeded() bool {
	return e.StatusCode() == CodeSuccess
}
