// Package config loads the bot configuration from defaults, a .env file, an optional
// YAML file and DISCORD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/gateway"
	"personal/discord_client/src/rest"
	"personal/discord_client/src/store"
)

// DefaultEnvFile is read by Load when present.
const DefaultEnvFile = ".env"

type Config struct {
	Token   string        `yaml:"token"`
	Prefix  string        `yaml:"prefix"`
	Intents int           `yaml:"intents"`
	Gateway GatewayConfig `yaml:"gateway"`
	REST    RESTConfig    `yaml:"rest"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type GatewayConfig struct {
	URL                   string        `yaml:"url"`
	Compress              bool          `yaml:"compress"`
	LargeThreshold        int           `yaml:"large_threshold"`
	SendLimit             int           `yaml:"send_limit"`
	SendWindow            time.Duration `yaml:"send_window"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	Status                string        `yaml:"status"`
	Activity              string        `yaml:"activity"`
}

type RESTConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	UserAgent               string        `yaml:"user_agent"`
	Timeout                 time.Duration `yaml:"timeout"`
	GlobalRequestsPerSecond float64       `yaml:"global_requests_per_second"`
	GlobalBurst             int           `yaml:"global_burst"`
}

type CacheConfig struct {
	// MaxMessages bounds the message cache. Zero keeps every message.
	MaxMessages  int  `yaml:"max_messages"`
	RefreshUsers bool `yaml:"refresh_users"`
}

type StorageConfig struct {
	Type       string `yaml:"type"`
	DSN        string `yaml:"dsn"`
	SessionKey string `yaml:"session_key"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	Exporter     string  `yaml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Prefix:  "!",
		Intents: gateway.DefaultIntents,
		Gateway: GatewayConfig{
			LargeThreshold:        50,
			SendLimit:             gateway.DefaultSendLimit,
			SendWindow:            gateway.DefaultSendWindow,
			ReconnectInitialDelay: gateway.DefaultReconnectInitialDelay,
			ReconnectMaxDelay:     gateway.DefaultReconnectMaxDelay,
			MaxReconnectAttempts:  10,
			Status:                string(entity.StatusOnline),
		},
		REST: RESTConfig{
			BaseURL:                 rest.DefaultBaseURL,
			Timeout:                 30 * time.Second,
			GlobalRequestsPerSecond: 50,
			GlobalBurst:             50,
		},
		Cache: CacheConfig{
			MaxMessages: 1000,
		},
		Storage: StorageConfig{
			Type:       store.TypeMemory,
			SessionKey: "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "discord_client",
			Exporter:    "stdout",
			SampleRate:  1.0,
		},
	}
}

// Load builds the configuration. A missing .env file is ignored; a missing YAML file
// is an error when configPath is set.
func Load(configPath string) (*Config, error) {
	return load(configPath, DefaultEnvFile)
}

func load(configPath, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	config := NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadEnvFile exports the variables in path without overriding ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromFile(config *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// envReader applies DISCORD_* overrides and remembers the first malformed value.
type envReader struct {
	err error
}

func (r *envReader) strVar(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (r *envReader) intVar(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) floatVar(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = f
}

func (r *envReader) boolVar(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = b
}

func (r *envReader) durationVar(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid value for %s: %w", key, err)
	}
}

func loadFromEnvironment(config *Config) error {
	r := &envReader{}

	r.strVar("DISCORD_TOKEN", &config.Token)
	r.strVar("DISCORD_PREFIX", &config.Prefix)
	r.intVar("DISCORD_INTENTS", &config.Intents)

	// Gateway
	r.strVar("DISCORD_GATEWAY_URL", &config.Gateway.URL)
	r.boolVar("DISCORD_GATEWAY_COMPRESS", &config.Gateway.Compress)
	r.intVar("DISCORD_GATEWAY_SEND_LIMIT", &config.Gateway.SendLimit)
	r.durationVar("DISCORD_GATEWAY_SEND_WINDOW", &config.Gateway.SendWindow)
	r.durationVar("DISCORD_GATEWAY_RECONNECT_INITIAL_DELAY", &config.Gateway.ReconnectInitialDelay)
	r.durationVar("DISCORD_GATEWAY_RECONNECT_MAX_DELAY", &config.Gateway.ReconnectMaxDelay)
	r.intVar("DISCORD_GATEWAY_MAX_RECONNECT_ATTEMPTS", &config.Gateway.MaxReconnectAttempts)
	r.strVar("DISCORD_STATUS", &config.Gateway.Status)
	r.strVar("DISCORD_ACTIVITY", &config.Gateway.Activity)

	// REST
	r.strVar("DISCORD_REST_BASE_URL", &config.REST.BaseURL)
	r.strVar("DISCORD_REST_USER_AGENT", &config.REST.UserAgent)
	r.durationVar("DISCORD_REST_TIMEOUT", &config.REST.Timeout)
	r.floatVar("DISCORD_REST_GLOBAL_RPS", &config.REST.GlobalRequestsPerSecond)
	r.intVar("DISCORD_REST_GLOBAL_BURST", &config.REST.GlobalBurst)

	// Cache
	r.intVar("DISCORD_CACHE_MAX_MESSAGES", &config.Cache.MaxMessages)
	r.boolVar("DISCORD_CACHE_REFRESH_USERS", &config.Cache.RefreshUsers)

	// Storage
	r.strVar("DISCORD_STORAGE_TYPE", &config.Storage.Type)
	r.strVar("DISCORD_STORAGE_DSN", &config.Storage.DSN)
	r.strVar("DISCORD_SESSION_KEY", &config.Storage.SessionKey)

	// Logging
	r.strVar("DISCORD_LOG_LEVEL", &config.Logging.Level)
	r.strVar("DISCORD_LOG_FORMAT", &config.Logging.Format)
	r.strVar("DISCORD_LOG_OUTPUT", &config.Logging.Output)
	r.strVar("DISCORD_LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics and tracing
	r.boolVar("DISCORD_METRICS_ENABLED", &config.Metrics.Enabled)
	r.intVar("DISCORD_METRICS_PORT", &config.Metrics.Port)
	r.strVar("DISCORD_METRICS_PATH", &config.Metrics.Path)
	r.boolVar("DISCORD_TRACING_ENABLED", &config.Tracing.Enabled)
	r.strVar("DISCORD_TRACING_EXPORTER", &config.Tracing.Exporter)
	r.strVar("DISCORD_OTLP_ENDPOINT", &config.Tracing.OTLPEndpoint)
	r.floatVar("DISCORD_TRACING_SAMPLE_RATE", &config.Tracing.SampleRate)

	return r.err
}

func (c *Config) Validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.Intents < 0 {
		errs = append(errs, errors.New("intents must not be negative"))
	}
	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := c.REST.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rest: %w", err))
	}
	if c.Cache.MaxMessages < 0 {
		errs = append(errs, errors.New("cache: max_messages must not be negative"))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.Metrics.Port))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	return errors.Join(errs...)
}

func (g *GatewayConfig) Validate() error {
	if g.SendLimit <= 0 {
		return errors.New("send_limit must be positive")
	}
	if g.SendWindow <= 0 {
		return errors.New("send_window must be positive")
	}
	if g.ReconnectInitialDelay < 0 || g.ReconnectMaxDelay < 0 {
		return errors.New("reconnect delays must not be negative")
	}
	if g.MaxReconnectAttempts < 0 {
		return errors.New("max_reconnect_attempts must not be negative")
	}
	if g.Status != "" && !entity.Status(g.Status).Valid() {
		return fmt.Errorf("invalid status %q", g.Status)
	}
	return nil
}

func (r *RESTConfig) Validate() error {
	if r.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if r.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if r.GlobalRequestsPerSecond < 0 || r.GlobalBurst < 0 {
		return errors.New("global limits must not be negative")
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	switch s.Type {
	case store.TypeMemory:
	case store.TypeSQLite, store.TypePostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for %s storage", s.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type %q (supported: %s)", s.Type, strings.Join(store.SupportedTypes(), ", "))
	}
	if s.SessionKey == "" {
		return errors.New("session_key is required")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", l.Format)
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			return errors.New("file_path is required when output is file")
		}
	default:
		return fmt.Errorf("unsupported log output %q", l.Output)
	}
	return nil
}

func (t *TracingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	switch t.Exporter {
	case "stdout":
	case "otlp":
		if t.OTLPEndpoint == "" {
			return errors.New("otlp_endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unsupported exporter %q", t.Exporter)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("sample_rate %v is outside [0, 1]", t.SampleRate)
	}
	return nil
}
