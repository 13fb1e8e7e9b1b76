//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/app"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
)

// One normaliser serves many goroutines; outcomes must not leak between calls.
func TestConcurrent_SharedNormaliser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/task/")
		if strings.HasSuffix(id, "7") {
			fmt.Fprintf(w, `{"code":403,"msg":"task %s is private"}`, id)
			return
		}
		fmt.Fprintf(w, `{"code":200,"data":{"id":%q}}`, id)
	}))
	defer server.Close()

	rec := &recorder{}
	be, _ := newNormalisedBackend(t, server.URL, 1, rec)

	const n = 50

	var wg sync.WaitGroup

	errs := make([]error, n)
	data := make([]string, n)

	for i := range n {
		wg.Go(func() {
			raw, err := be.Fetch(context.Background(), fmt.Sprintf("/api/task/%d", i), nil)
			errs[i] = err
			data[i] = string(raw)
		})
	}

	wg.Wait()

	failures := 0

	for i := range n {
		if i%10 == 7 {
			require.True(t, domain.IsApplication(errs[i]), "call %d", i)
			failures++

			continue
		}

		require.NoError(t, errs[i], "call %d", i)
		assert.JSONEq(t, fmt.Sprintf(`{"id":"%d"}`, i), data[i])
	}

	assert.Equal(t, int32(failures), rec.count.Load())
}

func TestConcurrent_FetchAllKeepsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":"`+r.URL.Path+`"}`)
	}))
	defer server.Close()

	be, _ := newNormalisedBackend(t, server.URL, 1, &recorder{})
	svc := app.NewGatewayService(app.GatewayServiceConfig{Gateway: be, Concurrency: 3})

	reqs := make([]app.FetchRequest, 10)
	for i := range reqs {
		reqs[i] = app.FetchRequest{Path: fmt.Sprintf("/p/%d", i)}
	}

	results := svc.FetchAll(context.Background(), reqs)

	require.Len(t, results, len(reqs))

	for i, r := range results {
		require.NoError(t, r.Err)
		assert.JSONEq(t, fmt.Sprintf(`"/p/%d"`, i), string(r.Value))
	}
}
