package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/capmd/capmd/internal/bytesize"
	"github.com/capmd/capmd/pkg/export"
	"github.com/capmd/capmd/pkg/ratelimit"
	"github.com/capmd/capmd/pkg/store"
)

// Config represents the capmd server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CAPMD_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// A handful of bare environment variables are honored for deployment
// compatibility: ALLOW_HTTP_WEBHOOKS, BASE_URL, APP_URL,
// MAX_WORKSPACE_STORAGE_BYTES and CAPMD_TEST_MODE. Their CAPMD_-prefixed
// equivalents win when both are set.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server contains HTTP listener and request handling settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the persistence backend (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Limits bounds file and workspace sizes
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// RateLimit tunes the per-key token bucket
	RateLimit ratelimit.Config `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Webhooks configures outbound webhook delivery
	Webhooks WebhookConfig `mapstructure:"webhooks" yaml:"webhooks"`

	// Export configures archive offload to object storage (optional)
	Export export.S3Config `mapstructure:"export" yaml:"export"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Auth contains owner session settings (JWT signing, token lifetimes)
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// TestMode relaxes runtime policy for test environments: rate limiting
	// is bypassed and audit entries racing a workspace delete are dropped
	// instead of logged as failures. Never enable in production.
	TestMode bool `mapstructure:"test_mode" yaml:"test_mode,omitempty"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the listen address
	// Default: 0.0.0.0
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port
	// Default: 8787
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// BaseURL is the externally visible base URL used when rendering
	// capability URLs in responses (e.g. "https://capmd.example.com").
	// Also honored from BASE_URL or APP_URL.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// AllowHTTPWebhooks permits plain-http webhook destinations to public
	// hosts. Private and loopback destinations stay blocked regardless.
	// Also honored from ALLOW_HTTP_WEBHOOKS.
	AllowHTTPWebhooks bool `mapstructure:"allow_http_webhooks" yaml:"allow_http_webhooks,omitempty"`

	// Proxy controls how much of the proxy-supplied client address
	// headers to trust.
	Proxy ProxyConfig `mapstructure:"proxy" yaml:"proxy"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ProxyConfig controls client IP resolution from proxy headers.
// CF-Connecting-IP is always trusted; these settings only govern
// X-Forwarded-For handling.
type ProxyConfig struct {
	// TrustHeaders enables X-Forwarded-For resolution at all.
	// Default: false (use the socket peer address)
	TrustHeaders bool `mapstructure:"trust_headers" yaml:"trust_headers"`

	// TrustSingleXFF accepts a single-value X-Forwarded-For. A
	// multi-value header is accepted whenever TrustHeaders is set,
	// since the last hop was appended by our own proxy.
	TrustSingleXFF bool `mapstructure:"trust_single_xff" yaml:"trust_single_xff,omitempty"`

	// SharedSecretHeader and SharedSecret gate all proxy header trust on
	// the proxy presenting the secret. Empty disables the gate.
	SharedSecretHeader string `mapstructure:"shared_secret_header" yaml:"shared_secret_header,omitempty"`
	SharedSecret       string `mapstructure:"shared_secret" yaml:"shared_secret,omitempty"`
}

// LimitsConfig bounds resource consumption per file and per workspace.
type LimitsConfig struct {
	// MaxFileSize is the largest accepted document body.
	// Supports human-readable formats: "1MB", "512KiB"
	// Default: 1 MiB
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxWorkspaceStorageBytes caps total live content per workspace.
	// Also honored from MAX_WORKSPACE_STORAGE_BYTES.
	// Default: 100 MiB
	MaxWorkspaceStorageBytes bytesize.ByteSize `mapstructure:"max_workspace_storage_bytes" yaml:"max_workspace_storage_bytes"`
}

// WebhookConfig configures outbound webhook delivery.
type WebhookConfig struct {
	// QueuePath is the directory for the persistent delivery queue.
	// Empty uses an in-memory queue (deliveries do not survive restart).
	QueuePath string `mapstructure:"queue_path" yaml:"queue_path"`
}

// AuthConfig contains owner session settings.
type AuthConfig struct {
	// JWTSecret signs owner session tokens. Required when owner routes
	// are used; generated during 'capmd init'.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// AccessTokenTTL is the lifetime of issued access tokens.
	// Default: 1h
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`

	// RefreshTokenTTL is the lifetime of issued refresh tokens.
	// Default: 720h (30 days)
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" yaml:"refresh_token_ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics endpoint is exposed.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP server is started
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	_, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyLegacyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  capmd init\n\n"+
				"Or specify a custom config file:\n"+
				"  capmd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  capmd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the file carries the JWT secret and database password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CAPMD_ prefix and underscores.
	// Example: CAPMD_LOGGING_LEVEL=DEBUG, CAPMD_SERVER_PORT=9000
	v.SetEnvPrefix("CAPMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/capmd/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// AutomaticEnv only resolves keys viper already knows about, so the
	// overridable keys are declared explicitly.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.host", "server.port", "server.base_url",
		"server.allow_http_webhooks",
		"database.type", "database.sqlite.path",
		"database.postgres.host", "database.postgres.port",
		"database.postgres.database", "database.postgres.user",
		"database.postgres.password", "database.postgres.ssl_mode",
		"limits.max_file_size", "limits.max_workspace_storage_bytes",
		"webhooks.queue_path",
		"export.bucket", "export.region", "export.endpoint",
		"auth.jwt_secret",
		"test_mode",
	} {
		_ = v.BindEnv(key)
	}
}

// applyLegacyEnv honors the bare (unprefixed) environment variables kept
// for deployment compatibility. CAPMD_-prefixed values win, so these only
// apply when the prefixed variable is unset.
func applyLegacyEnv(cfg *Config) {
	if os.Getenv("CAPMD_SERVER_ALLOW_HTTP_WEBHOOKS") == "" {
		if raw := os.Getenv("ALLOW_HTTP_WEBHOOKS"); raw != "" {
			cfg.Server.AllowHTTPWebhooks = isTruthy(raw)
		}
	}

	if os.Getenv("CAPMD_SERVER_BASE_URL") == "" {
		if raw := os.Getenv("BASE_URL"); raw != "" {
			cfg.Server.BaseURL = raw
		} else if raw := os.Getenv("APP_URL"); raw != "" {
			cfg.Server.BaseURL = raw
		}
	}

	if os.Getenv("CAPMD_LIMITS_MAX_WORKSPACE_STORAGE_BYTES") == "" {
		if raw := os.Getenv("MAX_WORKSPACE_STORAGE_BYTES"); raw != "" {
			if size, err := bytesize.ParseByteSize(raw); err == nil {
				cfg.Limits.MaxWorkspaceStorageBytes = size
			}
		}
	}
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "100MB", "1Gi", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "capmd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "capmd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
