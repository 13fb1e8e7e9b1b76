package backend

import (
	"fmt"
	"log/slog"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients/envelope"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// FromConfig builds the HTTP client, installs the envelope normaliser for the
// configured execution context and returns the adapter.
func FromConfig(cfg *config.Config, notifier ports.Notifier, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codes, err := cfg.ErrorCodes.Table()
	if err != nil {
		return nil, fmt.Errorf("building error code table: %w", err)
	}

	httpClient, err := clients.New(&clients.Config{
		BaseURL:          cfg.Backend.BaseURL,
		ServiceName:      cfg.Backend.Name,
		Timeout:          cfg.Client.Timeout,
		MaxResponseBytes: cfg.Client.MaxResponseBytes,
		Retry:            cfg.Client.Retry,
		Circuit:          cfg.Client.CircuitBreaker,
		Transport:        cfg.Client.Transport,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	normaliser, err := envelope.New(envelope.Options{
		Codes:             codes,
		Notifier:          notifier,
		Execution:         cfg.App.Execution(),
		Logger:            logger,
		HumanizeTransport: cfg.Notify.HumanizeTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating envelope normaliser: %w", err)
	}

	envelope.Install(httpClient, normaliser)

	return New(Config{
		Client:     httpClient,
		Name:       cfg.Backend.Name,
		HealthPath: cfg.Backend.HealthPath,
		Logger:     logger,
	}), nil
}
