// Package main is barragectl, a terminal client for the barrage-fly backend.
//
// It runs in the client execution context: every failure is shown as a toast
// on stderr while the unwrapped payload of each successful call goes to stdout.
//
//	barragectl /api/task/page -q page=1 -q size=10
//	barragectl --base-url http://localhost:30000 /api/task/1 /api/task/2
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/clients/backend"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/adapters/notify"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/app"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/config"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/platform/logging"
	"github.com/ordinaryroad/barrage-fly-gateway/internal/ports"
)

var errUsage = errors.New("at least one path is required")

type options struct {
	configDir string
	profile   string
	baseURL   string
	query     []string
	raw       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

// run returns the process exit code: 0 when every call succeeded, 1 when any
// failed and 2 on usage or configuration errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Logs and toasts share stderr from concurrent fetches.
	stderr = &lockedWriter{w: stderr}

	opts, paths, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}

		fmt.Fprintf(stderr, "barragectl: %v\n", err)

		return 2
	}

	query, err := parseQuery(opts.query)
	if err != nil {
		fmt.Fprintf(stderr, "barragectl: %v\n", err)
		return 2
	}

	cfg, err := config.LoadFrom(opts.configDir, opts.profile)
	if err != nil {
		fmt.Fprintf(stderr, "barragectl: loading config: %v\n", err)
		return 2
	}

	cfg.App.ExecutionContext = ports.ExecutionClient.String()
	if opts.baseURL != "" {
		cfg.Backend.BaseURL = opts.baseURL
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "barragectl: invalid config: %v\n", err)
		return 2
	}

	logger := logging.NewWithWriter(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  "pretty",
		Service: "barragectl",
		Version: cfg.App.Version,
	}, stderr)

	notifier, err := notify.FromConfig(cfg.Notify, logger, stderr, nil)
	if err != nil {
		fmt.Fprintf(stderr, "barragectl: %v\n", err)
		return 2
	}

	gateway, err := backend.FromConfig(cfg, notifier, logger)
	if err != nil {
		fmt.Fprintf(stderr, "barragectl: %v\n", err)
		return 2
	}

	service := app.NewGatewayService(app.GatewayServiceConfig{Gateway: gateway, Logger: logger})

	reqs := make([]app.FetchRequest, len(paths))
	for i, p := range paths {
		reqs[i] = app.FetchRequest{Path: p, Query: query}
	}

	code := 0

	for _, res := range service.FetchAll(logging.WithContext(ctx, logger), reqs) {
		if res.Err != nil {
			// The toast has already been shown by the normaliser.
			code = 1
			continue
		}

		if err := writeData(stdout, res.Value, opts.raw); err != nil {
			fmt.Fprintf(stderr, "barragectl: writing output: %v\n", err)
			return 1
		}
	}

	return code
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var opts options

	fs := pflag.NewFlagSet("barragectl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configDir, "config-dir", "configs", "directory holding base.yaml and profile files")
	fs.StringVarP(&opts.profile, "profile", "p", os.Getenv("APP_ENVIRONMENT"), "config profile")
	fs.StringVar(&opts.baseURL, "base-url", "", "override backend.base_url")
	fs.StringArrayVarP(&opts.query, "query", "q", nil, "query parameter as key=value, repeatable")
	fs.BoolVar(&opts.raw, "raw", false, "print payloads without indentation")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if fs.NArg() == 0 {
		return nil, nil, errUsage
	}

	return &opts, fs.Args(), nil
}

func parseQuery(pairs []string) (url.Values, error) {
	query := url.Values{}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("query %q: want key=value", pair)
		}

		query.Add(key, value)
	}

	return query, nil
}

func writeData(w io.Writer, data json.RawMessage, raw bool) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	if !raw {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}

	_, err := fmt.Fprintf(w, "%s\n", data)

	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}
