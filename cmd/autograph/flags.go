package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	URL         string
	Token       string
	Query       string
	QueryFile   string
	Variables   string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("AUTOGRAPH_CONFIG", ""),
		"Path to YAML configuration file (env: AUTOGRAPH_CONFIG)")

	flag.StringVar(&cfg.URL, "url",
		getEnv("AUTOGRAPH_URL", ""),
		"Subscription server endpoint, overrides config (env: AUTOGRAPH_URL)")

	flag.StringVar(&cfg.Token, "token",
		getEnv("AUTOGRAPH_TOKEN", ""),
		"Bearer token, overrides config (env: AUTOGRAPH_TOKEN)")

	flag.StringVar(&cfg.Query, "query", "",
		"Subscription query document")

	flag.StringVar(&cfg.QueryFile, "query-file", "",
		"Path to a file containing the subscription query document")

	flag.StringVar(&cfg.Variables, "variables", "",
		"Variable bindings as a JSON object")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("AUTOGRAPH_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: AUTOGRAPH_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("AUTOGRAPH_LOG_FORMAT", "text"),
		"Log format: json, text (env: AUTOGRAPH_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("AUTOGRAPH_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: AUTOGRAPH_METRICS_PORT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.ConfigPath == "" && cfg.URL == "" {
		return fmt.Errorf("either -config or -url is required")
	}

	if !cfg.Validate {
		if cfg.Query == "" && cfg.QueryFile == "" {
			return fmt.Errorf("either -query or -query-file is required")
		}
		if cfg.Query != "" && cfg.QueryFile != "" {
			return fmt.Errorf("-query and -query-file are mutually exclusive")
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - GraphQL subscription client

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Subscribe with an inline query
  %s --url=wss://api.example.com/graphql \
     --query='subscription film($id: ID!) { film(id: $id) { title } }' \
     --variables='{"id":"abc"}'

  # Subscribe using a config file and query document
  %s --config=/etc/autograph/client.yaml --query-file=film.graphql

  # Validate configuration only
  %s --config=/etc/autograph/client.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
