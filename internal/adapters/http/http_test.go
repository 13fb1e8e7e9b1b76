package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients/backend"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients/envelope"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/handlers"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/middleware"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/app"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            18080,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxRequestSize:  1 << 20,
	}
}

// newGateway wires the full stack against a fake barrage-fly backend.
func newGateway(t *testing.T, upstream http.HandlerFunc) *gin.Engine {
	t.Helper()

	fake := httptest.NewServer(upstream)
	t.Cleanup(fake.Close)

	client, err := clients.New(&clients.Config{
		BaseURL:     fake.URL,
		ServiceName: "barrage-fly",
		Timeout:     time.Second,
		Retry:       config.RetryConfig{MaxAttempts: 1},
		Circuit:     config.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Second, HalfOpenLimit: 1},
	})
	require.NoError(t, err)

	n, err := envelope.New(envelope.Options{Execution: ports.ExecutionServer})
	require.NoError(t, err)
	envelope.Install(client, n)

	be := backend.New(backend.Config{Client: client, HealthPath: "/actuator/health"})

	registry := ports.NewHealthRegistry(time.Second)
	require.NoError(t, registry.Register(be))

	srv := New(testServerConfig(), nil)
	SetupRouter(srv.Engine(), RouterConfig{
		ServiceName:    "gateway-test",
		HealthHandler:  handlers.NewHealthHandler(handlers.HealthHandlerConfig{Registry: registry}),
		GatewayHandler: handlers.NewGatewayHandler(app.NewGatewayService(app.GatewayServiceConfig{Gateway: be})),
		Timeout:        time.Second,
	})

	return srv.Engine()
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	return w
}

func TestGateway_Success(t *testing.T) {
	engine := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task/1", r.URL.Path)
		_, _ = io.WriteString(w, `{"code":200,"data":{"id":"1","platform":"BILIBILI"},"msg":"ok"}`)
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/task/1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"1","platform":"BILIBILI"}`, w.Body.String())
}

func TestGateway_ApplicationFailure(t *testing.T) {
	engine := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"code":401,"msg":"token expired"}`)
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/task/1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":401,"msg":"`+domain.MessageUnauthorized+`"}`, w.Body.String())
}

func TestGateway_TransportFailure(t *testing.T) {
	engine := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/task/1", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"code":502,"msg":"request failed with status code 500"}`, w.Body.String())
}

func TestGateway_PropagatesIDs(t *testing.T) {
	var gotRequestID, gotCorrelationID string

	engine := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(middleware.HeaderRequestID)
		gotCorrelationID = r.Header.Get(middleware.HeaderCorrelationID)
		_, _ = io.WriteString(w, `{"data":1}`)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-1")

	w := serve(engine, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "corr-1", gotCorrelationID)
	assert.Equal(t, "corr-1", w.Header().Get(middleware.HeaderCorrelationID))
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, gotRequestID, w.Header().Get(middleware.HeaderRequestID))
}

func TestGateway_Readiness(t *testing.T) {
	healthy := true

	engine := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"UP"}`)
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = serve(engine, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "barrage-fly")
}

func TestRecoveryRunsFirst(t *testing.T) {
	srv := New(testServerConfig(), nil)
	SetupRouter(srv.Engine(), RouterConfig{ServiceName: "gateway-test"})
	srv.Engine().GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(srv.Engine(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"msg":"an internal error occurred"}`, w.Body.String())
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := testServerConfig()
	cfg.Port = 0

	srv := New(cfg, nil)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	errCh := srv.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Shutdown(ctx))

	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestMaxBodySize(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxRequestSize = 4
	srv := New(cfg, nil)

	srv.Engine().POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789"))
	w := serve(srv.Engine(), req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
