package envelope

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// recordingNotifier captures every message it is asked to show.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Error(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func testCodes() *domain.ErrorCodeTable {
	return domain.NewErrorCodeTable(map[int]string{404: "Not Found"}, "Unknown error")
}

func newNormaliser(t *testing.T, exec ports.ExecutionContext, mutate ...func(*Options)) (*Normaliser, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	opts := Options{Codes: testCodes(), Notifier: notifier, Execution: exec}

	for _, m := range mutate {
		m(&opts)
	}

	n, err := New(opts)
	require.NoError(t, err)

	return n, notifier
}

func body(s string) *clients.Response {
	return &clients.Response{StatusCode: http.StatusOK, Body: []byte(s), Data: []byte(s)}
}

func TestOnRequest_Identity(t *testing.T) {
	n, notifier := newNormaliser(t, ports.ExecutionClient)

	req := httptest.NewRequest(http.MethodGet, "/api/task?x=1", nil)
	req.Header.Set("X-Custom", "v")

	out, err := n.OnRequest(context.Background(), req)

	require.NoError(t, err)
	assert.Same(t, req, out)
	assert.Equal(t, "v", out.Header.Get("X-Custom"))
	assert.Equal(t, "x=1", out.URL.RawQuery)
	assert.Empty(t, notifier.Messages())
}

func TestOnFulfilled_Success(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"code 200", `{"code":200,"data":{"id":1},"msg":"ok"}`, `{"id":1}`},
		{"code absent", `{"data":[1,2,3]}`, `[1,2,3]`},
		{"code zero", `{"code":0,"data":"x"}`, `"x"`},
		{"code null", `{"code":null,"data":true}`, `true`},
		{"code string 200", `{"code":"200","data":1}`, `1`},
		{"not an object", `[1,2]`, `[1,2]`},
		{"plain text", `pong`, `pong`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, notifier := newNormaliser(t, ports.ExecutionClient)
			in := body(tt.body)

			out, err := n.OnFulfilled(context.Background(), in)

			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out.Data))
			assert.Equal(t, tt.body, string(in.Data), "input response is not modified")
			assert.Equal(t, tt.body, string(out.Body))
			assert.Empty(t, notifier.Messages())
		})
	}
}

func TestOnFulfilled_DataAbsent(t *testing.T) {
	n, _ := newNormaliser(t, ports.ExecutionServer)

	out, err := n.OnFulfilled(context.Background(), body(`{"code":200}`))

	require.NoError(t, err)
	assert.Empty(t, out.Data)
}

func TestOnFulfilled_ApplicationFailure(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{"table wins over msg", `{"code":404,"msg":"ignored"}`, 404, "Not Found"},
		{"msg when not in table", `{"code":999,"msg":"custom message"}`, 999, "custom message"},
		{"default without msg", `{"code":999}`, 999, "Unknown error"},
		{"default with empty msg", `{"code":500,"msg":""}`, 500, "Unknown error"},
		{"string code", `{"code":"404"}`, 404, "Not Found"},
		{"non-numeric code keeps msg", `{"code":"abc","msg":"custom message"}`, 0, "custom message"},
		{"boolean code keeps msg", `{"code":true,"msg":"custom message"}`, 0, "custom message"},
		{"non-numeric code without msg", `{"code":"oops"}`, 0, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, notifier := newNormaliser(t, ports.ExecutionClient)

			out, err := n.OnFulfilled(context.Background(), body(tt.body))

			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantMsg, domain.RejectionValue(err))

			var appErr *domain.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)

			assert.Equal(t, []string{tt.wantMsg}, notifier.Messages())
		})
	}
}

func TestOnFulfilled_ServerContextDoesNotNotify(t *testing.T) {
	n, notifier := newNormaliser(t, ports.ExecutionServer)

	_, err := n.OnFulfilled(context.Background(), body(`{"code":404}`))

	require.Error(t, err)
	assert.Equal(t, "Not Found", err.Error())
	assert.Empty(t, notifier.Messages())
}

func TestOnFulfilled_NilResponse(t *testing.T) {
	n, _ := newNormaliser(t, ports.ExecutionClient)

	out, err := n.OnFulfilled(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, out)
}

func statusFailure(status int, payload string) error {
	return domain.NewTransportError(&clients.StatusError{Response: &clients.Response{
		StatusCode: status,
		Body:       []byte(payload),
		Data:       []byte(payload),
	}})
}

func TestOnRejected_ReturnsOriginalError(t *testing.T) {
	n, notifier := newNormaliser(t, ports.ExecutionClient)
	in := statusFailure(http.StatusInternalServerError, "boom")

	out, err := n.OnRejected(context.Background(), in)

	assert.Nil(t, out)
	assert.Same(t, in, err)
	assert.Equal(t, []string{"boom"}, notifier.Messages())
}

func TestOnRejected_MessageSelection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain body", statusFailure(502, "boom"), "boom"},
		{"json string body", statusFailure(500, `"boom"`), "boom"},
		{"json message field", statusFailure(500, `{"message":"db down","status":500}`), "db down"},
		{"json msg field", statusFailure(500, `{"code":500,"msg":"busy"}`), "busy"},
		{"json object without message", statusFailure(500, `{"status":500}`), `{"status":500}`},
		{"empty body", statusFailure(404, "  "), "request failed with status code 404"},
		{"no response", domain.NewTransportError(errors.New("dial tcp: connection refused")), "dial tcp: connection refused"},
		{"bare error", errors.New("network error"), "network error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, notifier := newNormaliser(t, ports.ExecutionClient)

			_, err := n.OnRejected(context.Background(), tt.err)

			assert.Same(t, tt.err, err)
			assert.Equal(t, []string{tt.want}, notifier.Messages())
		})
	}
}

func TestOnRejected_Humanized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status without body", statusFailure(503, ""), "backend returned HTTP 503"},
		{"status with body keeps body", statusFailure(503, "maintenance"), "maintenance"},
		{"timeout", domain.NewTransportError(context.DeadlineExceeded), MessageTimeout},
		{"connection", domain.NewTransportError(errors.New("dial tcp: connection refused")), MessageConnectionFailed},
		{"circuit open", domain.NewTransportError(clients.ErrCircuitOpen), MessageConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, notifier := newNormaliser(t, ports.ExecutionClient, func(o *Options) { o.HumanizeTransport = true })

			_, err := n.OnRejected(context.Background(), tt.err)

			assert.Same(t, tt.err, err)
			assert.Equal(t, []string{tt.want}, notifier.Messages())
		})
	}
}

func TestOnRejected_ServerContextDoesNotNotify(t *testing.T) {
	n, notifier := newNormaliser(t, ports.ExecutionServer)
	in := statusFailure(500, "boom")

	_, err := n.OnRejected(context.Background(), in)

	assert.Same(t, in, err)
	assert.Empty(t, notifier.Messages())
}

func TestNotify_PanicDoesNotChangeOutcome(t *testing.T) {
	n, _ := newNormaliser(t, ports.ExecutionClient, func(o *Options) {
		o.Notifier = ports.NotifierFunc(func(context.Context, string) { panic("ui gone") })
	})

	_, err := n.OnFulfilled(context.Background(), body(`{"code":404}`))
	require.Error(t, err)
	assert.Equal(t, "Not Found", err.Error())

	in := errors.New("x")
	_, err = n.OnRejected(context.Background(), in)
	assert.Same(t, in, err)
}

func TestNew_Defaults(t *testing.T) {
	n, err := New(Options{Execution: ports.ExecutionClient})
	require.NoError(t, err)

	_, err = n.OnFulfilled(context.Background(), body(`{"code":401}`))
	require.Error(t, err)
	assert.Equal(t, domain.MessageUnauthorized, err.Error())
}

// End to end through a real client.

func installed(t *testing.T, handler http.HandlerFunc, exec ports.ExecutionContext) (*clients.Client, *recordingNotifier) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := clients.New(&clients.Config{
		BaseURL:     server.URL,
		ServiceName: "barrage-fly",
		Timeout:     2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      2,
		},
		Circuit: config.CircuitBreakerConfig{MaxFailures: 10, Timeout: time.Second, HalfOpenLimit: 1},
	})
	require.NoError(t, err)

	n, notifier := newNormaliser(t, exec)
	Install(client, n)

	return client, notifier
}

func TestInstall_SuccessUnwrapsData(t *testing.T) {
	client, notifier := installed(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":200,"data":{"roomId":"7"}}`)
	}, ports.ExecutionClient)

	resp, err := client.Get(context.Background(), "/api/room")
	require.NoError(t, err)

	assert.JSONEq(t, `{"roomId":"7"}`, string(resp.Data))
	assert.Empty(t, notifier.Messages())
}

func TestInstall_ApplicationFailureNotifiesOnce(t *testing.T) {
	client, notifier := installed(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":404,"msg":"ignored"}`)
	}, ports.ExecutionClient)

	_, err := client.Get(context.Background(), "/api/room")

	require.Error(t, err)
	assert.True(t, domain.IsApplication(err))
	assert.Equal(t, "Not Found", err.Error())
	assert.Equal(t, []string{"Not Found"}, notifier.Messages())
}

func TestInstall_TransportFailurePassesThrough(t *testing.T) {
	client, notifier := installed(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "boom")
	}, ports.ExecutionClient)

	_, err := client.Get(context.Background(), "/api/room")

	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	assert.Equal(t, http.StatusBadGateway, clients.ResponseFromError(err).StatusCode)
	assert.Equal(t, []string{"boom"}, notifier.Messages())
}

func TestInstall_ServerContextSilent(t *testing.T) {
	client, notifier := installed(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":999,"msg":"custom message"}`)
	}, ports.ExecutionServer)

	_, err := client.Get(context.Background(), "/api/room")

	require.Error(t, err)
	assert.Equal(t, "custom message", err.Error())
	assert.Empty(t, notifier.Messages())
}

func TestInstall_ConcurrentRequests(t *testing.T) {
	client, notifier := installed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") == "1" {
			_, _ = io.WriteString(w, `{"code":404}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":1}`)
	}, ports.ExecutionClient)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := "/api/x"
			if i%2 == 0 {
				path += "?fail=1"
			}
			_, _ = client.Get(context.Background(), path)
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.Messages(), 10)
}
