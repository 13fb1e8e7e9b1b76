package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/telemetry"
)

const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"

	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = config.DefaultMaxResponseBytes
)

// Config configures a Client.
type Config struct {
	// BaseURL is prefixed to every relative path.
	BaseURL string

	// ServiceName names the backend in logs, spans and metrics.
	ServiceName string

	// Timeout bounds a single attempt. Retries and backoff come on top.
	Timeout time.Duration

	// MaxResponseBytes caps how much of a body is buffered.
	MaxResponseBytes int64

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient replaces the pooled client built from Transport. Tests only.
	HTTPClient *http.Client
}

// Client is an instrumented HTTP client with axios-style interception.
//
// A call flows through the request chain, then dispatch (breaker, retry with
// backoff, tracing), then the response chain. Interceptors see fully buffered
// responses; non-2xx statuses arrive at rejected handlers as *StatusError.
type Client struct {
	http         *http.Client
	cfg          Config
	baseURL      string
	logger       *slog.Logger
	breaker      *Breaker
	interceptors *Interceptors

	tracer   trace.Tracer
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// New creates a Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "clients.Client"), slog.String("backend", c.ServiceName))

	breaker := NewBreaker(BreakerConfig{
		MaxFailures:   c.Circuit.MaxFailures,
		Cooldown:      c.Circuit.Timeout,
		HalfOpenLimit: c.Circuit.HalfOpenLimit,
	})
	breaker.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	})

	meter := otel.Meter(telemetry.InstrumentationName)

	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Backend call duration including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	total, err := meter.Int64Counter(
		"http.client.request.total",
		metric.WithDescription("Backend calls by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   c.Timeout,
			Transport: newTransport(c.Transport),
		}
	}

	return &Client{
		http:         httpClient,
		cfg:          c,
		baseURL:      strings.TrimSuffix(c.BaseURL, "/"),
		logger:       logger,
		breaker:      breaker,
		interceptors: newInterceptors(),
		tracer:       otel.Tracer(telemetry.InstrumentationName),
		duration:     duration,
		total:        total,
	}, nil
}

func newTransport(cfg config.TransportConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib guarantees the type

	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
	}

	if cfg.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}

	if cfg.IdleConnTimeout > 0 {
		t.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return t
}

// Interceptors exposes the request and response chains.
func (c *Client) Interceptors() *Interceptors {
	return c.interceptors
}

// OnRequest registers a request interceptor.
func (c *Client) OnRequest(fn RequestInterceptor) {
	c.interceptors.Request.Use(fn)
}

// CircuitState returns the breaker state.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

// Do sends req through the interceptor chains.
//
// Retry only rewinds bodies of requests with GetBody set; requests built by
// Get/Post/Put/Delete always have it.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	requestChain := c.interceptors.Request.snapshot()
	responseChain := c.interceptors.Response.snapshot()

	out, err := runRequestChain(ctx, requestChain, req)

	var resp *Response
	if err == nil {
		resp, err = c.dispatch(ctx, out)
	}

	return runResponseChain(ctx, responseChain, resp, err)
}

// Get performs a GET on path, which may carry a query string.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// Post performs a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

// Put performs a JSON PUT.
func (c *Client) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.send(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.send(ctx, http.MethodDelete, path, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	return c.Do(ctx, req)
}

// dispatch runs the breaker, span and retry loop for one logical call.
// Failures come back wrapped in a domain.TransportError.
func (c *Client) dispatch(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("backend", c.cfg.ServiceName),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !c.breaker.Allow() {
		c.record(ctx, req.Method, 0, time.Since(start), "circuit_open")
		logger.Warn("request blocked by circuit breaker")

		return nil, domain.NewTransportError(ErrCircuitOpen)
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.cfg.ServiceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", c.cfg.ServiceName),
		),
	)
	defer span.End()

	c.injectHeaders(ctx, req)

	resp, err := c.attempts(ctx, req, logger)
	elapsed := time.Since(start)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, req.Method, 0, elapsed, "error")
		logger.Error("request failed", slog.Duration("duration", elapsed), slog.Any("error", err))

		return nil, domain.NewTransportError(err)
	}

	if IsServerError(resp.StatusCode) {
		c.breaker.Failure()
	} else {
		c.breaker.Success()
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.record(ctx, req.Method, resp.StatusCode, elapsed, fmt.Sprintf("%dxx", resp.StatusCode/100))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		logger.Warn("backend returned error status", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))

		return nil, domain.NewTransportError(&StatusError{Response: resp})
	}

	logger.Debug("request completed", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))
	logger.Log(ctx, logging.LevelTrace, "response body", slog.String("body", string(resp.Body)))

	return resp, nil
}

// attempts retries network errors and 5xx answers. The last 5xx response is
// returned rather than an error so its body stays visible to interceptors.
func (c *Client) attempts(ctx context.Context, req *http.Request, logger *slog.Logger) (*Response, error) {
	var (
		resp    *Response
		lastErr error
	)

	for attempt := range c.cfg.Retry.MaxAttempts {
		if attempt > 0 {
			if err := c.wait(ctx, attempt, logger); err != nil {
				return nil, err
			}
		}

		attemptReq, err := rewind(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		resp, lastErr = c.roundTrip(attemptReq)

		switch {
		case lastErr != nil && isRetryableError(lastErr):
			logger.Debug("retryable request error", slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
		case lastErr != nil:
			return nil, lastErr
		case IsServerError(resp.StatusCode):
			logger.Debug("retryable server status", slog.Int("attempt", attempt+1), slog.Int("status", resp.StatusCode))
		default:
			return resp, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
	}

	return resp, nil
}

func (c *Client) roundTrip(req *http.Request) (*Response, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.cfg.MaxResponseBytes)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Data:       body,
		Request:    req,
	}, nil
}

func (c *Client) wait(ctx context.Context, attempt int, logger *slog.Logger) error {
	backoff := c.backoff(attempt)
	logger.Debug("retrying request", slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rewind returns a request usable for the given attempt.
func rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(ctx)
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}

	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed for retry")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}

	out.Body = body

	return out, nil
}

// injectHeaders propagates request and correlation IDs and the trace context.
func (c *Client) injectHeaders(ctx context.Context, req *http.Request) {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(headerRequestID, id)
	}

	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(headerCorrelationID, id)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// backoff is initial * multiplier^(attempt-1), capped, with ±JitterFactor jitter.
func (c *Client) backoff(attempt int) time.Duration {
	r := c.cfg.Retry

	d := float64(r.InitialInterval) * math.Pow(r.Multiplier, float64(attempt-1))
	if r.MaxInterval > 0 && d > float64(r.MaxInterval) {
		d = float64(r.MaxInterval)
	}

	if r.JitterFactor > 0 {
		d += d * r.JitterFactor * (rand.Float64()*2 - 1) //nolint:gosec // jitter needs no crypto randomness
	}

	return time.Duration(d)
}

func (c *Client) record(ctx context.Context, method string, status int, elapsed time.Duration, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.cfg.ServiceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	c.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	c.total.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// isRetryableError reports whether a dispatch error is worth another attempt.
// Cancellation and deadline errors never are.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
