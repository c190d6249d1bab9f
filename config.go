package autograph

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/pkg/retry"
)

// DefaultReconnectBudget is the number of automatic reconnect attempts
// allowed per failure episode.
const DefaultReconnectBudget = 3

// ReconnectConfig governs automatic reconnection after the transport
// suggests a retry or a dial fails mid-cycle.
type ReconnectConfig struct {
	// Enabled turns automatic reconnection on. Explicit Disconnect never
	// reconnects regardless.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Budget is the number of attempts per failure episode.
	Budget int `json:"budget" yaml:"budget"`
	// Backoff paces the attempts.
	Backoff retry.Config `json:"backoff" yaml:"backoff"`
}

// Config holds client configuration.
type Config struct {
	// URL is the subscription server endpoint (ws, wss, http or https).
	URL string `json:"url" yaml:"url"`
	// Origin overrides the Origin handshake header.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
	// Token is the bearer token sent on the handshake.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Host names the API host placed in start-frame authorization
	// extensions. Defaults to the URL host.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Headers are extra handshake headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	// Reconnect configures automatic reconnection.
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 45 * time.Second,
		Reconnect: ReconnectConfig{
			Enabled: true,
			Budget:  DefaultReconnectBudget,
			Backoff: retry.Config{
				InitialDelay: 1 * time.Second,
				MaxDelay:     60 * time.Second,
				Multiplier:   2.0,
				AddJitter:    true,
			},
		},
	}
}

// Validate checks the configuration. A malformed or missing server URL is
// an ErrConnectionRequestInvalid.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrConnectionRequestInvalid,
			"autograph", "Validate", "check empty URL")
	}

	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("%w: missing host in %q", errors.ErrConnectionRequestInvalid, c.URL)
		} else {
			err = fmt.Errorf("%w: %v", errors.ErrConnectionRequestInvalid, err)
		}
		return errors.WrapInvalid(err, "autograph", "Validate", "parse URL")
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrConnectionRequestInvalid, u.Scheme),
			"autograph", "Validate", "check URL scheme")
	}

	if c.Reconnect.Budget < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("reconnect budget cannot be negative: %d", c.Reconnect.Budget),
			"autograph", "Validate", "check reconnect budget")
	}

	return nil
}

// hostOrDefault returns the configured API host, falling back to the
// endpoint host.
func (c Config) hostOrDefault() string {
	if c.Host != "" {
		return c.Host
	}
	if u, err := url.Parse(c.URL); err == nil {
		return u.Host
	}
	return ""
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WrapInvalid(err, "autograph", "LoadConfig", "read config file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "autograph", "LoadConfig", "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
