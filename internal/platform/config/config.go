// Package config provides configuration loading and management using koanf.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/domain"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

// Default configuration values.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultMaxRequestSize is the default maximum request body size (1MB).
	DefaultMaxRequestSize = 1 << 20

	// DefaultMaxResponseBytes caps how much of a backend response is buffered (8MB).
	DefaultMaxResponseBytes = 8 << 20

	// DefaultClientRetryMaxAttempts is the default number of attempts per request.
	DefaultClientRetryMaxAttempts = 3

	// DefaultClientRetryMultiplier is the default exponential backoff multiplier.
	DefaultClientRetryMultiplier = 2.0

	// DefaultClientRetryJitterFactor is the default jitter percentage (±25%).
	DefaultClientRetryJitterFactor = 0.25

	// DefaultClientCircuitMaxFailures is the default failures before the circuit opens.
	DefaultClientCircuitMaxFailures = 5

	// DefaultClientCircuitHalfOpenLimit is the default successes to close the circuit.
	DefaultClientCircuitHalfOpenLimit = 3

	// DefaultTransportMaxIdleConns is the default max idle connections.
	DefaultTransportMaxIdleConns = 100

	// DefaultTransportMaxIdleConnsPerHost is the default max idle connections per host.
	DefaultTransportMaxIdleConnsPerHost = 10

	// DefaultLogFileMaxSizeMB is the default max log file size in megabytes.
	DefaultLogFileMaxSizeMB = 100

	// DefaultLogFileMaxBackups is the default number of old log files to retain.
	DefaultLogFileMaxBackups = 3

	// DefaultLogFileMaxAgeDays is the default max days to retain old log files.
	DefaultLogFileMaxAgeDays = 28
)

// Config is the root configuration structure.
type Config struct {
	App        AppConfig        `koanf:"app"       validate:"required"`
	Server     ServerConfig     `koanf:"server"    validate:"required"`
	Log        LogConfig        `koanf:"log"       validate:"required"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Client     ClientConfig     `koanf:"client"    validate:"required"`
	Backend    BackendConfig    `koanf:"backend"   validate:"required"`
	ErrorCodes ErrorCodesConfig `koanf:"errcodes"`
	Notify     NotifyConfig     `koanf:"notify"    validate:"required"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`

	// ExecutionContext decides whether failures are shown to a user ("client")
	// or only propagated ("server").
	ExecutionContext string `koanf:"execution_context" validate:"required,oneof=client server"`
}

// Execution returns the parsed execution context.
func (a AppConfig) Execution() ports.ExecutionContext {
	ec, err := ports.ParseExecutionContext(a.ExecutionContext)
	if err != nil {
		return ports.ExecutionServer
	}

	return ec
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// ClientConfig contains settings for the backend HTTP client.
type ClientConfig struct {
	Timeout          time.Duration        `koanf:"timeout"            validate:"required,min=100ms"`
	MaxResponseBytes int64                `koanf:"max_response_bytes" validate:"required,min=1"`
	Retry            RetryConfig          `koanf:"retry"              validate:"required"`
	CircuitBreaker   CircuitBreakerConfig `koanf:"circuit_breaker"    validate:"required"`
	Transport        TransportConfig      `koanf:"transport"          validate:"required"`
}

// RetryConfig contains retry settings for HTTP clients.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// CircuitBreakerConfig contains circuit breaker settings for HTTP clients.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// TransportConfig contains HTTP transport pool settings.
type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// BackendConfig points at the barrage-fly backend.
type BackendConfig struct {
	BaseURL    string `koanf:"base_url"    validate:"required,url"`
	Name       string `koanf:"name"        validate:"required"`
	HealthPath string `koanf:"health_path" validate:"required,startswith=/"`
}

// ErrorCodesConfig overrides entries of the built-in business error-code table.
//
//	errcodes:
//	  default: "Unknown system error"
//	  codes:
//	    "401": "Please sign in again"
type ErrorCodesConfig struct {
	Default string            `koanf:"default"`
	Codes   map[string]string `koanf:"codes"`
}

// Table builds the error-code table: built-in entries overlaid with configuration.
func (e ErrorCodesConfig) Table() (*domain.ErrorCodeTable, error) {
	overrides := make(map[int]string, len(e.Codes))

	for key, msg := range e.Codes {
		code, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("errcodes.codes: key %q is not an integer code", key)
		}

		overrides[code] = msg
	}

	return domain.DefaultErrorCodeTable().With(overrides, e.Default), nil
}

// NotifyConfig selects how failures are shown in the client execution context.
type NotifyConfig struct {
	// Sink is one of: terminal (styled stderr line), log (slog record), none.
	Sink string `koanf:"sink" validate:"required,oneof=terminal log none"`

	// HumanizeTransport replaces raw transport error text with friendlier wording
	// when the failed response carries no message of its own.
	HumanizeTransport bool `koanf:"humanize_transport"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":              "barrage-fly-gateway",
		"app.version":           "dev",
		"app.environment":       "local",
		"app.execution_context": "server",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/gateway.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "barrage-fly-gateway",
		"telemetry.sampling_rate": 1.0,

		"client.timeout":                           "30s",
		"client.max_response_bytes":                DefaultMaxResponseBytes,
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":               DefaultClientRetryJitterFactor,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       "90s",

		"backend.base_url":    "http://localhost:30000",
		"backend.name":        "barrage-fly",
		"backend.health_path": "/actuator/health",

		"errcodes.default": "",

		"notify.sink":               "terminal",
		"notify.humanize_transport": false,
	}
}

// Load loads configuration with the following precedence (highest to lowest):
//  1. Environment variables (APP_ prefix)
//  2. Profile config file (configs/{profile}.yaml)
//  3. Base config file (configs/base.yaml)
//  4. Default values
func Load(profile string) (*Config, error) {
	return LoadFrom("configs", profile)
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := loadFileIfExists(k, dir+"/base.yaml"); err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	if profile != "" {
		if err := loadFileIfExists(k, fmt.Sprintf("%s/%s.yaml", dir, profile)); err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	err := k.Load(env.Provider("APP_", ".", func(s string) string {
		return envKey(strings.TrimPrefix(s, "APP_"))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey maps an env var suffix to a koanf key. Keys with a default are matched
// exactly so multi-word segments survive (CLIENT_CIRCUIT_BREAKER_MAX_FAILURES ->
// client.circuit_breaker.max_failures); anything else splits on every underscore
// (ERRCODES_CODES_404 -> errcodes.codes.404).
func envKey(s string) string {
	key := strings.ToLower(s)

	if known, ok := flatDefaultKeys[key]; ok {
		return known
	}

	return strings.ReplaceAll(key, "_", ".")
}

// flatDefaultKeys indexes every default key by its underscore-flattened form.
var flatDefaultKeys = func() map[string]string {
	d := defaults()
	index := make(map[string]string, len(d))

	for key := range d {
		index[strings.ReplaceAll(key, ".", "_")] = key
	}

	return index
}()

// loadFileIfExists loads a YAML config file if it exists.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
