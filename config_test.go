package autograph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeveloperBeau/AutoGraph/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 45*time.Second, cfg.HandshakeTimeout)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, DefaultReconnectBudget, cfg.Reconnect.Budget)
	assert.Equal(t, time.Second, cfg.Reconnect.Backoff.InitialDelay)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid wss", func(c *Config) { c.URL = "wss://example.com/graphql" }, false},
		{"valid ws", func(c *Config) { c.URL = "ws://localhost:8080/graphql" }, false},
		{"valid https", func(c *Config) { c.URL = "https://example.com/graphql" }, false},
		{"empty URL", func(c *Config) { c.URL = "" }, true},
		{"no host", func(c *Config) { c.URL = "wss://" }, true},
		{"bad scheme", func(c *Config) { c.URL = "ftp://example.com" }, true},
		{"unparseable", func(c *Config) { c.URL = "://\x00" }, true},
		{"negative budget", func(c *Config) {
			c.URL = "wss://example.com/graphql"
			c.Reconnect.Budget = -1
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHostOrDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "wss://swapi.example.com/graphql"
	assert.Equal(t, "swapi.example.com", cfg.hostOrDefault())

	cfg.Host = "api.internal"
	assert.Equal(t, "api.internal", cfg.hostOrDefault())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: wss://swapi.example.com/graphql
token: t0k3n
handshake_timeout: 10s
reconnect:
  enabled: true
  budget: 5
  backoff:
    initial_delay: 250ms
    max_delay: 30s
    multiplier: 2.0
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://swapi.example.com/graphql", cfg.URL)
	assert.Equal(t, "t0k3n", cfg.Token)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 5, cfg.Reconnect.Budget)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.Backoff.InitialDelay)
}

func TestLoadConfigKeepsDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("url: wss://example.com/graphql\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, DefaultReconnectBudget, cfg.Reconnect.Budget)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [not, a, string"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)

	// Valid YAML, invalid content
	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: ftp://example.com\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionRequestInvalid)
}
