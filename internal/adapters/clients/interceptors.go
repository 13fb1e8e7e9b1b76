package clients

import (
	"context"
	"net/http"
	"sync"
)

// RequestInterceptor inspects or replaces an outgoing request. Returning an error
// aborts the call before dispatch; the error then goes through the rejected chain.
type RequestInterceptor func(ctx context.Context, req *http.Request) (*http.Request, error)

// ResponseFulfilled runs when the previous step produced a response.
type ResponseFulfilled func(ctx context.Context, resp *Response) (*Response, error)

// ResponseRejected runs when the previous step failed. Returning a response
// recovers the call; returning an error keeps it failed.
type ResponseRejected func(ctx context.Context, err error) (*Response, error)

type responseHandler struct {
	fulfilled ResponseFulfilled
	rejected  ResponseRejected
}

// Interceptors holds the request and response chains of a Client.
// Registration is safe while requests are in flight; each call works on a snapshot.
type Interceptors struct {
	Request  *RequestChain
	Response *ResponseChain
}

func newInterceptors() *Interceptors {
	return &Interceptors{Request: &RequestChain{}, Response: &ResponseChain{}}
}

// RequestChain runs request interceptors in registration order.
type RequestChain struct {
	mu       sync.RWMutex
	handlers []RequestInterceptor
}

// Use appends fn to the chain. A nil fn is ignored.
func (c *RequestChain) Use(fn RequestInterceptor) {
	if fn == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, fn)
}

// Len returns the number of registered interceptors.
func (c *RequestChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.handlers)
}

func (c *RequestChain) snapshot() []RequestInterceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]RequestInterceptor(nil), c.handlers...)
}

// ResponseChain runs (fulfilled, rejected) pairs in registration order.
//
// Each pair sees the outcome of the previous one: a response goes to the next
// fulfilled handler and an error to the next rejected handler. An error returned
// by a fulfilled handler therefore skips its own pair's rejected handler.
type ResponseChain struct {
	mu       sync.RWMutex
	handlers []responseHandler
}

// Use appends a handler pair. Either side may be nil to pass that outcome through.
func (c *ResponseChain) Use(onFulfilled ResponseFulfilled, onRejected ResponseRejected) {
	if onFulfilled == nil && onRejected == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, responseHandler{fulfilled: onFulfilled, rejected: onRejected})
}

// Len returns the number of registered pairs.
func (c *ResponseChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.handlers)
}

func (c *ResponseChain) snapshot() []responseHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]responseHandler(nil), c.handlers...)
}

func runRequestChain(ctx context.Context, chain []RequestInterceptor, req *http.Request) (*http.Request, error) {
	for _, fn := range chain {
		next, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}

		if next != nil {
			req = next
		}
	}

	return req, nil
}

func runResponseChain(ctx context.Context, chain []responseHandler, resp *Response, err error) (*Response, error) {
	for _, h := range chain {
		if err == nil {
			if h.fulfilled != nil {
				resp, err = h.fulfilled(ctx, resp)
			}

			continue
		}

		if h.rejected != nil {
			resp, err = h.rejected(ctx, err)
		}
	}

	if err != nil {
		return nil, err
	}

	return resp, nil
}
