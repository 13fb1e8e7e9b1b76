// Package backend adapts the barrage-fly HTTP API to ports.Gateway.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
)

// Config configures the backend adapter.
type Config struct {
	// Client must already have the envelope normaliser installed.
	Client *clients.Client

	// Name identifies the backend in health output. Defaults to "barrage-fly".
	Name string

	// HealthPath is requested by Check. Defaults to "/actuator/health".
	HealthPath string

	Logger *slog.Logger
}

// Client implements ports.Gateway and ports.HealthChecker.
type Client struct {
	client     *clients.Client
	name       string
	healthPath string
	logger     *slog.Logger
}

// New creates the adapter. Panics if cfg.Client is nil.
func New(cfg Config) *Client {
	if cfg.Client == nil {
		panic("backend: Client is required")
	}

	name := cfg.Name
	if name == "" {
		name = "barrage-fly"
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/actuator/health"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{client: cfg.Client, name: name, healthPath: healthPath, logger: logger}
}

// Fetch GETs path with query and returns the unwrapped payload.
// Failures are returned exactly as the interceptor chain produced them.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := path
	if encoded := query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target = path + sep + encoded
	}

	c.logger.Log(ctx, logging.LevelTrace, "fetching", slog.String("target", target))

	resp, err := c.client.Get(ctx, target)
	if err != nil {
		return nil, err
	}

	if resp == nil {
		return nil, fmt.Errorf("fetching %s: empty response", path)
	}

	return resp.Data, nil
}

// Name implements ports.HealthChecker.
func (c *Client) Name() string {
	return c.name
}

// healthStatus is the part of an actuator-style health payload Check reads.
type healthStatus struct {
	Status string `json:"status"`
}

// Check requests the health path. Any failure marks the backend unhealthy, as
// does a payload whose status is set to anything but UP.
func (c *Client) Check(ctx context.Context) error {
	resp, err := c.client.Get(ctx, c.healthPath)
	if err != nil {
		return fmt.Errorf("%s health: %w", c.name, err)
	}

	health, err := clients.DecodeData[healthStatus](resp)
	if err != nil {
		// Payloads that are not a health document still mean the backend answered.
		return nil //nolint:nilerr // only an explicit status can fail the check
	}

	if health.Status != "" && !strings.EqualFold(health.Status, "UP") {
		return fmt.Errorf("%s health: status %s", c.name, health.Status)
	}

	return nil
}
