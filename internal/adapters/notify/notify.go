// Package notify provides ports.Notifier implementations: a terminal toast,
// a structured log record, a Prometheus-counted decorator and a no-op.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// Sink names accepted by FromConfig.
const (
	SinkTerminal = "terminal"
	SinkLog      = "log"
	SinkNone     = "none"
)

// Discard drops every notification.
var Discard ports.Notifier = ports.NotifierFunc(func(context.Context, string) {})

// LogNotifier writes notifications as error-level slog records.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the context logger
// of each call.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Error logs message.
func (n *LogNotifier) Error(ctx context.Context, message string) {
	logger := n.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	logger.ErrorContext(ctx, "notification", slog.String("message", message))
}

// FromConfig builds the notifier selected by cfg.Sink. Terminal toasts go to w.
// When reg is non-nil the notifier is wrapped with a counter.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger, w io.Writer, reg prometheus.Registerer) (ports.Notifier, error) {
	var n ports.Notifier

	switch cfg.Sink {
	case SinkTerminal:
		n = NewTerminalNotifier(w)
	case SinkLog:
		n = NewLogNotifier(logger)
	case SinkNone, "":
		n = Discard
	default:
		return nil, fmt.Errorf("unknown notify sink %q", cfg.Sink)
	}

	if reg == nil {
		return n, nil
	}

	return NewCounting(n, reg)
}
