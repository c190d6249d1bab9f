// Package main implements the AutoGraph command line subscriber. It opens
// one GraphQL subscription over the graphql-ws protocol and prints each
// inbound result as a JSON line, until the server completes the
// subscription or the process is interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	autograph "github.com/DeveloperBeau/AutoGraph"
	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/metric"
	"github.com/DeveloperBeau/AutoGraph/pkg/retry"
	"github.com/DeveloperBeau/AutoGraph/subscription"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "autograph"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := buildConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewRegistry()
	if cliCfg.MetricsPort > 0 {
		serveMetrics(cliCfg.MetricsPort, registry)
	}

	req, err := buildRequest(cliCfg, cfg)
	if err != nil {
		return err
	}

	client, err := autograph.NewClient(cfg,
		autograph.WithLogger(logger),
		autograph.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := connectWithRetry(signalCtx, client, cfg); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return subscribeAndStream(signalCtx, client, req)
}

// connectWithRetry establishes the initial connection, retrying transient
// dial failures on the configured backoff schedule. Invalid configuration
// and cancellation stop the attempts immediately.
func connectWithRetry(ctx context.Context, client *autograph.Client, cfg autograph.Config) error {
	backoff := cfg.Reconnect.Backoff
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = cfg.Reconnect.Budget
	}

	return retry.Do(ctx, backoff, func() error {
		outcome := make(chan error, 1)
		client.Connect(func(err error) { outcome <- err })

		select {
		case <-ctx.Done():
			return retry.NonRetryable(ctx.Err())
		case err := <-outcome:
			if err == nil {
				return nil
			}
			if errors.IsInvalid(err) || errors.IsFatal(err) {
				return retry.NonRetryable(err)
			}
			slog.Warn("Connect attempt failed", "error", err)
			return err
		}
	})
}

// buildConfig loads the optional configuration file and applies flag
// overrides.
func buildConfig(cliCfg *CLIConfig) (autograph.Config, error) {
	cfg := autograph.DefaultConfig()

	if cliCfg.ConfigPath != "" {
		loaded, err := autograph.LoadConfig(cliCfg.ConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.URL != "" {
		cfg.URL = cliCfg.URL
	}
	if cliCfg.Token != "" {
		cfg.Token = cliCfg.Token
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRequest assembles the subscription request from the query document
// and variable bindings.
func buildRequest(cliCfg *CLIConfig, cfg autograph.Config) (*subscription.Request, error) {
	query := cliCfg.Query
	if cliCfg.QueryFile != "" {
		data, err := os.ReadFile(cliCfg.QueryFile)
		if err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
		query = string(data)
	}

	var variables map[string]any
	if cliCfg.Variables != "" {
		if err := json.Unmarshal([]byte(cliCfg.Variables), &variables); err != nil {
			return nil, fmt.Errorf("parse variables: %w", err)
		}
	}

	req, err := subscription.NewRequest(query, variables)
	if err != nil {
		return nil, fmt.Errorf("build subscription request: %w", err)
	}

	host := cfg.Host
	if host == "" {
		if u, err := url.Parse(cfg.URL); err == nil {
			host = u.Host
		}
	}
	return req.WithAuthorization(cfg.Token, host), nil
}

// serveMetrics exposes the prometheus registry on the given port.
func serveMetrics(port int, registry *metric.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
}

// subscribeAndStream runs the subscription until it terminates or ctx is
// cancelled, printing each result as one JSON line on stdout.
func subscribeAndStream(ctx context.Context, client *autograph.Client, req *subscription.Request) error {
	handler := subscription.NewChannelHandler(64)
	client.Subscribe(req, handler)
	slog.Info("Subscribed", "subscription_id", req.ID())

	encoder := json.NewEncoder(os.Stdout)
	results := handler.Results()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
			client.Unsubscribe(req)
			client.Disconnect()
			return nil

		case result, ok := <-results:
			if !ok {
				// Terminal notification pending on Done
				results = nil
				continue
			}
			if result.Err != nil {
				slog.Warn("Subscription error frame", "error", result.Err)
				continue
			}
			if err := encoder.Encode(json.RawMessage(result.Data)); err != nil {
				return fmt.Errorf("write result: %w", err)
			}

		case err := <-handler.Done():
			if err != nil {
				return fmt.Errorf("subscription terminated: %w", err)
			}
			slog.Info("Subscription completed by server")
			return nil
		}
	}
}
