// Package config loads, validates and watches the miniserver configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/miniserver/pkg/server"
	"github.com/marmos91/miniserver/pkg/store"
)

// EnvPrefix prefixes every environment override, e.g. MINISERVER_LOGGING_LEVEL.
const EnvPrefix = "MINISERVER"

// Config represents the miniserver configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (MINISERVER_*, then the legacy DATABASE_*, WEB_URL,
//     API_URL and NO_REPLY_EMAIL variables)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Environment selects the deployment environment.
	// Valid values: development, testing, staging, production
	Environment Environment `mapstructure:"environment" validate:"required,oneof=development testing staging production" yaml:"environment" jsonschema:"enum=development,enum=testing,enum=staging,enum=production"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the HTTP listener and its shutdown
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the persistence backend (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Auth configures bearer token signing
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// URLs holds the public addresses of the deployment
	URLs URLsConfig `mapstructure:"urls" yaml:"urls"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
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

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Hostname is the default bind host when no --hostname/--bind is given
	// Default: 127.0.0.1
	Hostname string `mapstructure:"hostname" validate:"required" yaml:"hostname"`

	// Port is the default bind port when no --port/--bind is given
	// Default: 8080
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// UnixSocket, when set, binds a unix domain socket instead of TCP
	UnixSocket string `mapstructure:"unix_socket" yaml:"unix_socket,omitempty"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// HTTP timeouts and socket permissions
	HTTP server.Config `mapstructure:"http" yaml:"http"`
}

// AuthConfig configures bearer token signing.
type AuthConfig struct {
	// Secret is the HMAC signing key for tokens. Must be at least 32
	// characters. When empty outside production an ephemeral secret is
	// generated at startup.
	Secret string `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret,omitempty"`

	// Issuer is the iss claim of issued tokens
	// Default: miniserver
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// TokenTTL is the default token lifetime
	// Default: 720h (30 days)
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gt=0" yaml:"token_ttl"`
}

// URLsConfig holds the public addresses of the deployment.
type URLsConfig struct {
	// Web is the public web address. Legacy override: WEB_URL
	// Default: http://localhost:8080
	Web string `mapstructure:"web" validate:"required,url" yaml:"web"`

	// API is the public API address. Legacy override: API_URL
	// Default: same as Web
	API string `mapstructure:"api" validate:"required,url" yaml:"api"`

	// NoReplyEmail is the sender of automated mail. Legacy override: NO_REPLY_EMAIL
	NoReplyEmail string `mapstructure:"no_reply_email" validate:"omitempty,email" yaml:"no_reply_email,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the scrape route on the main listener
	// Default: /metrics
	Path string `mapstructure:"path" validate:"omitempty,startswith=/" yaml:"path"`
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
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// legacyEnv maps config keys to the environment variables of the original
// deployment. MINISERVER_* variables take precedence.
var legacyEnv = map[string]string{
	"database.postgres.url":      "DATABASE_URL",
	"database.postgres.host":     "DATABASE_HOST",
	"database.postgres.database": "DATABASE_NAME",
	"database.postgres.user":     "DATABASE_USERNAME",
	"database.postgres.password": "DATABASE_PASSWORD",
	"urls.web":                   "WEB_URL",
	"urls.api":                   "API_URL",
	"urls.no_reply_email":        "NO_REPLY_EMAIL",
}

// Load loads configuration from file, environment, and defaults.
//
// A missing config file is not an error: defaults and environment
// overrides still apply.
func Load(configPath string) (*Config, error) {
	cfg, _, err := LoadViper(configPath)
	return cfg, err
}

// LoadViper is Load returning the viper instance as well, so callers can
// Watch the file it read.
func LoadViper(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, nil, err
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// decode unmarshals, defaults and validates the current viper state.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Legacy deployments select PostgreSQL by setting DATABASE_URL or
	// DATABASE_HOST without naming a database type.
	if !v.InConfig("database.type") && os.Getenv(EnvPrefix+"_DATABASE_TYPE") == "" &&
		(os.Getenv("DATABASE_URL") != "" || os.Getenv("DATABASE_HOST") != "") {
		cfg.Database.Type = store.DatabaseTypePostgres
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, requiring the file to exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  miniserver config init\n\n"+
				"Or specify a custom config file:\n"+
				"  miniserver <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  miniserver config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold the token secret and database password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Telemetry.Profiling.ProfileTypes = append([]string(nil), c.Telemetry.Profiling.ProfileTypes...)
	if out.Auth.Secret != "" {
		out.Auth.Secret = mask
	}
	if out.Database.Postgres.Password != "" {
		out.Database.Postgres.Password = mask
	}
	if out.Database.Postgres.URL != "" {
		out.Database.Postgres.URL = redactURL(out.Database.Postgres.URL)
	}
	return &out
}

const mask = "********"

// redactURL masks the password of a connection URL.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return raw
	}
	userinfo := rest[:at]
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return raw
	}
	return scheme + "://" + user + ":" + mask + rest[at:]
}

// setupViper configures viper with defaults, environment variables and
// config file settings.
func setupViper(v *viper.Viper, configPath string) error {
	// Every key needs a default for AutomaticEnv to see it.
	if err := registerDefaults(v, GetDefaultConfig()); err != nil {
		return err
	}
	// Empty so ApplyDefaults can follow an overridden web URL.
	v.SetDefault("urls.api", "")

	// Example: MINISERVER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", legacy, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/miniserver/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// registerDefaults flattens cfg into dotted viper defaults.
func registerDefaults(v *viper.Viper, cfg *Config) error {
	var tree map[string]any
	if err := mapstructure.Decode(cfg, &tree); err != nil {
		return fmt.Errorf("failed to flatten defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		environmentDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
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
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// environmentDecodeHook accepts the short environment aliases.
func environmentDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Environment("")) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return ParseEnvironment(s)
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "miniserver")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "miniserver")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
