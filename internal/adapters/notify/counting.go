package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

const severityError = "error"

// Counting counts notifications before forwarding them.
type Counting struct {
	next  ports.Notifier
	total *prometheus.CounterVec
}

// NewCounting wraps next and registers barrage_notifications_total on reg.
// Registering twice on the same registry reuses the existing collector.
func NewCounting(next ports.Notifier, reg prometheus.Registerer) (*Counting, error) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barrage",
		Name:      "notifications_total",
		Help:      "Failure notifications shown to the user, by severity.",
	}, []string{"severity"})

	if err := reg.Register(total); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("registering notification counter: %w", err)
		}

		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("registering notification counter: %w", err)
		}

		total = existing
	}

	return &Counting{next: next, total: total}, nil
}

// Error counts and forwards message.
func (c *Counting) Error(ctx context.Context, message string) {
	c.total.WithLabelValues(severityError).Inc()
	c.next.Error(ctx, message)
}
