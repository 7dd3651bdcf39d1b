package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal/discord_client/src/gateway"
	"personal/discord_client/src/rest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWithTokenFromEnvironment(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")

	cfg, err := load("", "")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "!", cfg.Prefix)
	assert.Equal(t, gateway.DefaultIntents, cfg.Intents)
	assert.Equal(t, 110, cfg.Gateway.SendLimit)
	assert.Equal(t, time.Minute, cfg.Gateway.SendWindow)
	assert.Equal(t, 3*time.Second, cfg.Gateway.ReconnectInitialDelay)
	assert.Equal(t, rest.DefaultBaseURL, cfg.REST.BaseURL)
	assert.Equal(t, 1000, cfg.Cache.MaxMessages)
	assert.False(t, cfg.Cache.RefreshUsers)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
token: "file-token"
prefix: "?"
intents: 513
gateway:
  compress: true
  send_limit: 100
  send_window: 30s
  reconnect_initial_delay: 1s
  reconnect_max_delay: 20s
  max_reconnect_attempts: 0
  status: idle
  activity: "with snowflakes"
rest:
  timeout: 10s
  global_requests_per_second: 25
cache:
  max_messages: 0
  refresh_users: true
storage:
  type: sqlite
  dsn: ./sessions.db
  session_key: bot-1
logging:
  level: debug
  format: json
metrics:
  enabled: true
  port: 9100
`)

	cfg, err := load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, "?", cfg.Prefix)
	assert.Equal(t, 513, cfg.Intents)
	assert.True(t, cfg.Gateway.Compress)
	assert.Equal(t, 100, cfg.Gateway.SendLimit)
	assert.Equal(t, 30*time.Second, cfg.Gateway.SendWindow)
	assert.Equal(t, time.Second, cfg.Gateway.ReconnectInitialDelay)
	assert.Equal(t, 20*time.Second, cfg.Gateway.ReconnectMaxDelay)
	assert.Zero(t, cfg.Gateway.MaxReconnectAttempts)
	assert.Equal(t, "idle", cfg.Gateway.Status)
	assert.Equal(t, "with snowflakes", cfg.Gateway.Activity)
	assert.Equal(t, 10*time.Second, cfg.REST.Timeout)
	assert.Equal(t, 25.0, cfg.REST.GlobalRequestsPerSecond)
	assert.Equal(t, 50, cfg.REST.GlobalBurst, "unset keys keep their defaults")
	assert.Zero(t, cfg.Cache.MaxMessages)
	assert.True(t, cfg.Cache.RefreshUsers)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "bot-1", cfg.Storage.SessionKey)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9100, cfg.Metrics.Port)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
token: "file-token"
gateway:
  send_limit: 100
logging:
  level: debug
`)
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("DISCORD_GATEWAY_SEND_LIMIT", "50")
	t.Setenv("DISCORD_GATEWAY_SEND_WINDOW", "45s")
	t.Setenv("DISCORD_CACHE_REFRESH_USERS", "TRUE")
	t.Setenv("DISCORD_LOG_LEVEL", "warn")
	t.Setenv("DISCORD_TRACING_SAMPLE_RATE", "0.25")

	cfg, err := load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 50, cfg.Gateway.SendLimit)
	assert.Equal(t, 45*time.Second, cfg.Gateway.SendWindow)
	assert.True(t, cfg.Cache.RefreshUsers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	require.NoError(t, os.Unsetenv("DISCORD_TOKEN"))
	t.Setenv("DISCORD_PREFIX", "$")

	envFile := writeFile(t, ".env", "DISCORD_TOKEN=dotenv-token\nDISCORD_PREFIX=%\n")

	cfg, err := load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "dotenv-token", cfg.Token)
	assert.Equal(t, "$", cfg.Prefix, "variables already set win over .env")
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "t")

	_, err := load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "t")
		_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), "")
		assert.ErrorContains(t, err, "failed to load config from file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "t")
		path := writeFile(t, "bad.yaml", "gateway: [unclosed")
		_, err := load(path, "")
		assert.ErrorContains(t, err, "failed to parse YAML config")
	})

	t.Run("malformed env value", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "t")
		t.Setenv("DISCORD_GATEWAY_SEND_LIMIT", "lots")
		_, err := load("", "")
		assert.ErrorContains(t, err, "DISCORD_GATEWAY_SEND_LIMIT")
	})

	t.Run("missing token", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "")
		_, err := load("", "")
		assert.ErrorContains(t, err, "token is required")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero send limit", func(c *Config) { c.Gateway.SendLimit = 0 }, "send_limit"},
		{"zero send window", func(c *Config) { c.Gateway.SendWindow = 0 }, "send_window"},
		{"bad status", func(c *Config) { c.Gateway.Status = "away" }, "invalid status"},
		{"negative cache", func(c *Config) { c.Cache.MaxMessages = -1 }, "max_messages"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "redis" }, "unsupported storage type"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Type = "sqlite" }, "dsn is required"},
		{"postgres with dsn", func(c *Config) { c.Storage.Type = "postgres"; c.Storage.DSN = "postgres://x" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }, "file_path"},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }, "invalid port"},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, "otlp_endpoint"},
		{"bad sample rate", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 }, "sample_rate"},
		{"empty base url", func(c *Config) { c.REST.BaseURL = "" }, "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Token = "t"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
