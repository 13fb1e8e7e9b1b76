// Package main runs the barrage-fly gateway: an HTTP service that fronts the
// barrage-fly backend and normalises its response envelope.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients/backend"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/handlers"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/notify"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/app"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/telemetry"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	logger.Info("starting gateway",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("backend", cfg.Backend.BaseURL),
	)

	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(ctx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	// Only consulted when app.execution_context is client.
	notifier, err := notify.FromConfig(cfg.Notify, logger, os.Stderr, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	gateway, err := backend.FromConfig(cfg, notifier, logger)
	if err != nil {
		return fmt.Errorf("creating backend adapter: %w", err)
	}

	healthRegistry := ports.NewHealthRegistry(healthCheckTimeout)
	if err := healthRegistry.Register(gateway); err != nil {
		return fmt.Errorf("registering backend health check: %w", err)
	}

	service := app.NewGatewayService(app.GatewayServiceConfig{
		Gateway: gateway,
		Logger:  logger,
	})

	server := http.New(&cfg.Server, logger)

	http.SetupRouter(server.Engine(), http.RouterConfig{
		ServiceName: cfg.App.Name,
		HealthHandler: handlers.NewHealthHandler(handlers.HealthHandlerConfig{
			Registry:  healthRegistry,
			BuildInfo: handlers.NewBuildInfo(Version, Commit, BuildTime),
		}),
		GatewayHandler: handlers.NewGatewayHandler(service),
		Timeout:        http.DefaultRequestTimeout,
	})

	return waitForShutdown(ctx, logger, server, server.Start(), cfg.Server.ShutdownTimeout)
}

// waitForShutdown blocks until SIGINT/SIGTERM or a server error, then drains.
func waitForShutdown(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	serverErr <-chan error,
	shutdownTimeout time.Duration,
) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}
