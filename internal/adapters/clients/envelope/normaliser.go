package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/telemetry"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// Humanised transport messages.
const (
	MessageConnectionFailed = "backend connection failed"
	MessageTimeout          = "request timed out"
	messageStatusFormat     = "backend returned HTTP %d"
)

// Options configures a Normaliser.
type Options struct {
	// Codes resolves business codes to messages. Defaults to domain.DefaultErrorCodeTable().
	Codes *domain.ErrorCodeTable

	// Notifier shows failures in the client execution context. Defaults to a no-op.
	Notifier ports.Notifier

	// Execution selects whether failures are shown.
	Execution ports.ExecutionContext

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HumanizeTransport swaps raw transport error text for a short description
	// when the failed response has no body to show.
	HumanizeTransport bool
}

// Normaliser holds the interceptors. It keeps no per-request state.
type Normaliser struct {
	codes     *domain.ErrorCodeTable
	notifier  ports.Notifier
	execution ports.ExecutionContext
	logger    *slog.Logger
	humanize  bool
	failures  metric.Int64Counter
}

// New builds a Normaliser from opts.
func New(opts Options) (*Normaliser, error) {
	codes := opts.Codes
	if codes == nil {
		codes = domain.DefaultErrorCodeTable()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = ports.NotifierFunc(func(context.Context, string) {})
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	failures, err := otel.Meter(telemetry.InstrumentationName).Int64Counter(
		"envelope.failures",
		metric.WithDescription("Normalised backend failures by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	return &Normaliser{
		codes:     codes,
		notifier:  notifier,
		execution: opts.Execution,
		logger:    logger.With(slog.String("component", "envelope.Normaliser")),
		humanize:  opts.HumanizeTransport,
		failures:  failures,
	}, nil
}

// Install registers n's interceptors on c.
func Install(c *clients.Client, n *Normaliser) {
	c.OnRequest(n.OnRequest)
	c.Interceptors().Response.Use(n.OnFulfilled, n.OnRejected)
}

// OnRequest returns req unchanged.
func (n *Normaliser) OnRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	return req, nil
}

// OnFulfilled unwraps a successful envelope. The returned response is a copy
// whose Data is the envelope's data field; resp is not modified.
func (n *Normaliser) OnFulfilled(ctx context.Context, resp *clients.Response) (*clients.Response, error) {
	if resp == nil {
		return nil, nil //nolint:nilnil // nothing to normalise
	}

	env, err := domain.ParseEnvelope(resp.Data)
	if err != nil {
		n.logger.WarnContext(ctx, "malformed envelope", slog.Any("error", err))
		return nil, n.reject(ctx, 0, n.codes.Resolve(0, env.Message()))
	}

	if env.Succeeded() {
		out := *resp
		out.Data = env.Data

		return &out, nil
	}

	code := env.StatusCode()

	return nil, n.reject(ctx, code, n.codes.Resolve(code, env.Message()))
}

// OnRejected shows a transport failure and returns err itself.
func (n *Normaliser) OnRejected(ctx context.Context, err error) (*clients.Response, error) {
	n.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", domain.Classify(err).String())))

	if n.execution.IsClient() {
		n.notify(ctx, n.failureMessage(err))
	}

	n.logger.DebugContext(ctx, "backend request failed", slog.Any("error", err))

	return nil, err
}

func (n *Normaliser) reject(ctx context.Context, code int, message string) error {
	n.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", domain.FailureApplication.String())))

	if n.execution.IsClient() {
		n.notify(ctx, message)
	}

	n.logger.DebugContext(ctx, "backend reported failure", slog.Int("code", code), slog.String("message", message))

	return domain.NewApplicationError(code, message)
}

// notify shows message. A panicking notifier is logged and does not change the outcome.
func (n *Normaliser) notify(ctx context.Context, message string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.ErrorContext(ctx, "notifier panicked", slog.Any("panic", r))
		}
	}()

	n.notifier.Error(ctx, message)
}

// failureMessage picks what to show for a transport failure: the response body
// when there is one, else the error's own text.
func (n *Normaliser) failureMessage(err error) string {
	if resp := clients.ResponseFromError(err); resp != nil {
		if msg := bodyMessage(resp.Body); msg != "" {
			return msg
		}
	}

	if n.humanize {
		return humanize(err)
	}

	return err.Error()
}

// bodyMessage renders a failed response body for display.
// A JSON string is unquoted, a JSON object yields its "message" (or "msg") field,
// anything else is shown as text.
func bodyMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return s
		}
	case '{':
		var fields struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
		}
		if json.Unmarshal(trimmed, &fields) == nil {
			if fields.Message != "" {
				return fields.Message
			}

			if fields.Msg != "" {
				return fields.Msg
			}
		}
	}

	return string(trimmed)
}

func humanize(err error) string {
	if resp := clients.ResponseFromError(err); resp != nil {
		return fmt.Sprintf(messageStatusFormat, resp.StatusCode)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(err.Error(), "timeout") {
		return MessageTimeout
	}

	return MessageConnectionFailed
}
