package config

import (
	"strings"

	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/lifecycle"
	"github.com/marmos91/miniserver/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.Database.ApplyDefaults()
	applyAuthDefaults(&cfg.Auth)
	applyURLDefaults(&cfg.URLs)
	applyMetricsDefaults(&cfg.Metrics)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Hostname == "" {
		cfg.Hostname = lifecycle.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = lifecycle.DefaultPort
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = lifecycle.DefaultShutdownTimeout
	}
	cfg.HTTP.ApplyDefaults()
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Issuer == "" {
		cfg.Issuer = auth.DefaultIssuer
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = auth.DefaultTTL
	}
}

func applyURLDefaults(cfg *URLsConfig) {
	if cfg.Web == "" {
		cfg.Web = "http://localhost:8080"
	}
	if cfg.API == "" {
		cfg.API = cfg.Web
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Environment: EnvDevelopment,
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
