package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/handlers"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/http/middleware"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds a gateway call when RouterConfig.Timeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains what SetupRouter wires onto the engine.
type RouterConfig struct {
	// ServiceName names the server span.
	ServiceName string

	HealthHandler  *handlers.HealthHandler
	GatewayHandler *handlers.GatewayHandler

	// Timeout bounds /api requests.
	Timeout time.Duration
}

// SetupRouter installs middleware and routes. Middleware order:
//  1. Recovery
//  2. Request ID, then correlation ID
//  3. Tracing and request metrics
//  4. Logging (skips /-/)
//
// Routes:
//   - /-/     probes and metrics
//   - /api/*  gateway passthrough, with a deadline
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.Tracing(cfg.ServiceName),
		telemetry.Middleware(),
		middleware.Logging(),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutes(engine.Group("/-"))
	}

	if cfg.GatewayHandler != nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}

		api := engine.Group("/api")
		api.Use(middleware.Timeout(timeout))
		cfg.GatewayHandler.RegisterGatewayRoutes(api)
	}
}
