// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

const defaultFetchConcurrency = 4

// FetchRequest names one backend read.
type FetchRequest struct {
	Path  string
	Query url.Values
}

// GatewayService fronts the barrage-fly backend.
type GatewayService struct {
	gateway     ports.Gateway
	logger      *slog.Logger
	concurrency int
}

// GatewayServiceConfig contains configuration for the gateway service.
type GatewayServiceConfig struct {
	Gateway ports.Gateway
	Logger  *slog.Logger

	// Concurrency bounds FetchAll. Defaults to 4.
	Concurrency int
}

// NewGatewayService creates the service. Panics if cfg.Gateway is nil.
func NewGatewayService(cfg GatewayServiceConfig) *GatewayService {
	if cfg.Gateway == nil {
		panic("app: Gateway is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = defaultFetchConcurrency
	}

	return &GatewayService{
		gateway:     cfg.Gateway,
		logger:      logger.With(slog.String("component", "app.GatewayService")),
		concurrency: concurrency,
	}
}

// Fetch reads path from the backend. The error is returned unchanged so
// callers can still tell application failures from transport failures.
func (s *GatewayService) Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	logger := s.loggerFor(ctx).With(slog.String("path", path))
	logger.DebugContext(ctx, "fetching from backend")

	data, err := s.gateway.Fetch(ctx, path, query)
	if err != nil {
		s.logFailure(ctx, logger, err)
		return nil, err
	}

	logger.DebugContext(ctx, "fetched from backend", slog.Int("bytes", len(data)))

	return data, nil
}

// FetchAll runs every request concurrently and returns the outcomes in order.
func (s *GatewayService) FetchAll(ctx context.Context, reqs []FetchRequest) []PartialResult[json.RawMessage] {
	fns := make([]func(context.Context) (json.RawMessage, error), len(reqs))
	for i, req := range reqs {
		fns[i] = func(ctx context.Context) (json.RawMessage, error) {
			return s.Fetch(ctx, req.Path, req.Query)
		}
	}

	return ParallelPartialLimit(ctx, s.concurrency, fns...)
}

func (s *GatewayService) logFailure(ctx context.Context, logger *slog.Logger, err error) {
	kind := domain.Classify(err)
	attrs := []any{slog.String("kind", kind.String()), slog.Any("error", err)}

	if kind == domain.FailureApplication {
		var appErr *domain.ApplicationError
		if errors.As(err, &appErr) {
			attrs = append(attrs, slog.Int("code", appErr.Code))
		}

		logger.WarnContext(ctx, "backend rejected request", attrs...)

		return
	}

	logger.ErrorContext(ctx, "backend request failed", attrs...)
}

func (s *GatewayService) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger.With(slog.String("component", "app.GatewayService"))
	}

	return s.logger
}
