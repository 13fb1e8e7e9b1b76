package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestChain_RunsInOrderAndReplaces(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Trail"))
	})

	client.OnRequest(func(_ context.Context, req *http.Request) (*http.Request, error) {
		req.Header.Set("X-Trail", "a")
		return req, nil
	})
	client.OnRequest(func(_ context.Context, req *http.Request) (*http.Request, error) {
		clone := req.Clone(req.Context())
		clone.Header.Set("X-Trail", clone.Header.Get("X-Trail")+"b")
		return clone, nil
	})
	client.OnRequest(nil)

	resp, err := client.Get(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, "ab", string(resp.Body))
	assert.Equal(t, 2, client.Interceptors().Request.Len())
}

func TestRequestChain_ErrorAbortsDispatch(t *testing.T) {
	var hits atomic.Int32

	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { hits.Add(1) })

	abort := errors.New("blocked")
	client.OnRequest(func(context.Context, *http.Request) (*http.Request, error) {
		return nil, abort
	})

	var seen error
	client.Interceptors().Response.Use(nil, func(_ context.Context, err error) (*Response, error) {
		seen = err
		return nil, err
	})

	_, err := client.Get(context.Background(), "/")

	require.ErrorIs(t, err, abort)
	assert.Same(t, abort, seen)
	assert.Zero(t, hits.Load())
}

func TestResponseChain_FulfilledRewritesData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":1}`)
	})

	client.Interceptors().Response.Use(func(_ context.Context, resp *Response) (*Response, error) {
		resp.Data = []byte(`1`)
		return resp, nil
	}, nil)

	resp, err := client.Get(context.Background(), "/")
	require.NoError(t, err)

	assert.JSONEq(t, `1`, string(resp.Data))
	assert.JSONEq(t, `{"data":1}`, string(resp.Body))
}

func TestResponseChain_FulfilledErrorSkipsOwnRejected(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	fail := errors.New("business failure")
	var ownRejected, nextRejected int

	client.Interceptors().Response.Use(
		func(context.Context, *Response) (*Response, error) { return nil, fail },
		func(_ context.Context, err error) (*Response, error) { ownRejected++; return nil, err },
	)
	client.Interceptors().Response.Use(
		nil,
		func(_ context.Context, err error) (*Response, error) { nextRejected++; return nil, err },
	)

	_, err := client.Get(context.Background(), "/")

	assert.Same(t, fail, err)
	assert.Zero(t, ownRejected)
	assert.Equal(t, 1, nextRejected)
}

func TestResponseChain_RejectedCanRecover(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client.Interceptors().Response.Use(nil, func(_ context.Context, err error) (*Response, error) {
		failed := ResponseFromError(err)
		return &Response{StatusCode: failed.StatusCode, Data: []byte(`null`)}, nil
	})

	var fulfilled bool
	client.Interceptors().Response.Use(func(_ context.Context, resp *Response) (*Response, error) {
		fulfilled = true
		return resp, nil
	}, nil)

	resp, err := client.Get(context.Background(), "/")
	require.NoError(t, err)

	assert.True(t, fulfilled)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponseChain_UseIgnoresEmptyPair(t *testing.T) {
	chain := &ResponseChain{}
	chain.Use(nil, nil)

	assert.Zero(t, chain.Len())
}

func TestInterceptors_RegisterWhileInFlight(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = client.Get(context.Background(), "/")
		}()
		go func() {
			defer wg.Done()
			client.Interceptors().Response.Use(func(_ context.Context, r *Response) (*Response, error) { return r, nil }, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, client.Interceptors().Response.Len())
}
