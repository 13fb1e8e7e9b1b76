package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Response is a fully buffered backend response.
//
// Body is the raw payload as received. Data starts out equal to Body and is what
// response interceptors rewrite; the envelope normaliser replaces it with the
// unwrapped data field.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Data       json.RawMessage
	Request    *http.Request
}

// DecodeData unmarshals resp.Data into a T. Empty data yields the zero T.
func DecodeData[T any](resp *Response) (T, error) {
	var out T

	if resp == nil {
		return out, errors.New("decoding data: nil response")
	}

	if len(resp.Data) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("decoding data: %w", err)
	}

	return out, nil
}
