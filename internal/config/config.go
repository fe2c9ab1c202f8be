// Package config provides configuration loading and validation for the
// background agent. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the background agent.
type Config struct {
	// Agent settings
	Env     string `koanf:"env"`
	OwnerID string `koanf:"owner_id"`

	// Remote backend
	DatabaseURL string `koanf:"database_url"`
	RealtimeURL string `koanf:"realtime_url"`

	// Local device store emulation
	RedisURL       string `koanf:"redis_url"`
	RedisNamespace string `koanf:"redis_namespace"`

	// Push relay
	PushEndpoint       string `koanf:"push_endpoint"`
	PushTeamID         string `koanf:"push_team_id"`
	PushKeyID          string `koanf:"push_key_id"`
	PushPrivateKeyPath string `koanf:"push_private_key_path"`

	// Scheduling
	ForegroundScanIntervalMinutes int `koanf:"foreground_scan_interval_minutes"`
	PassTimeoutSeconds            int `koanf:"pass_timeout_seconds"`

	// Proximity thresholds
	HomeRadiusMeters  float64 `koanf:"home_radius_meters"`
	OuterRadiusMeters float64 `koanf:"outer_radius_meters"`
	DeadZoneMeters    float64 `koanf:"dead_zone_meters"`
	CooldownHours     int     `koanf:"cooldown_hours"`

	// Observability
	MetricsPort         int     `koanf:"metrics_port"`
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required")
	ErrMissingOwnerID     = errors.New("OWNER_ID is required")
	ErrIncompletePushKeys = errors.New("push relay requires PUSH_ENDPOINT, PUSH_TEAM_ID, PUSH_KEY_ID and PUSH_PRIVATE_KEY_PATH together")
	ErrInvalidInt         = errors.New("must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultEnv                           = "development"
	DefaultRedisNamespace                = "agent"
	DefaultForegroundScanIntervalMinutes = 60
	DefaultPassTimeoutSeconds            = 30
	DefaultMetricsPort                   = 9090
	DefaultTracingSamplingRate           = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	scanInterval, err := getEnvIntOrDefault("FOREGROUND_SCAN_INTERVAL_MINUTES", k.Int("foreground_scan_interval_minutes"), DefaultForegroundScanIntervalMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	passTimeout, err := getEnvIntOrDefault("PASS_TIMEOUT_SECONDS", k.Int("pass_timeout_seconds"), DefaultPassTimeoutSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	cooldownHours, err := getEnvIntOrDefault("COOLDOWN_HOURS", k.Int("cooldown_hours"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	metricsPort, err := getEnvIntOrDefault("METRICS_PORT", k.Int("metrics_port"), DefaultMetricsPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	homeRadius, err := getEnvFloatOrDefault("HOME_RADIUS_METERS", k.Float64("home_radius_meters"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	outerRadius, err := getEnvFloatOrDefault("OUTER_RADIUS_METERS", k.Float64("outer_radius_meters"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	deadZone, err := getEnvFloatOrDefault("DEAD_ZONE_METERS", k.Float64("dead_zone_meters"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	tracingEnabled := k.Bool("tracing_enabled")
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		tracingEnabled = val == "true" || val == "1" || val == "yes" || val == "on"
	}
	tracingInsecure := k.Bool("tracing_insecure")
	if val := os.Getenv("TRACING_INSECURE"); val != "" {
		tracingInsecure = val == "true" || val == "1" || val == "yes" || val == "on"
	}

	cfg := &Config{
		Env:                DefaultEnv,
		OwnerID:            getEnvOrKoanf("OWNER_ID", k, "owner_id"),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RealtimeURL:        getEnvOrKoanf("REALTIME_URL", k, "realtime_url"),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		RedisNamespace:     getEnvOrKoanf("REDIS_NAMESPACE", k, "redis_namespace"),
		PushEndpoint:       getEnvOrKoanf("PUSH_ENDPOINT", k, "push_endpoint"),
		PushTeamID:         getEnvOrKoanf("PUSH_TEAM_ID", k, "push_team_id"),
		PushKeyID:          getEnvOrKoanf("PUSH_KEY_ID", k, "push_key_id"),
		PushPrivateKeyPath: getEnvOrKoanf("PUSH_PRIVATE_KEY_PATH", k, "push_private_key_path"),

		ForegroundScanIntervalMinutes: scanInterval,
		PassTimeoutSeconds:            passTimeout,
		HomeRadiusMeters:              homeRadius,
		OuterRadiusMeters:             outerRadius,
		DeadZoneMeters:                deadZone,
		CooldownHours:                 cooldownHours,

		MetricsPort:         metricsPort,
		TracingEnabled:      tracingEnabled,
		TracingExporter:     getEnvOrKoanf("TRACING_EXPORTER", k, "tracing_exporter"),
		TracingEndpoint:     getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSamplingRate: samplingRate,
		TracingInsecure:     tracingInsecure,
	}
	if env := getEnvOrKoanf("AGENT_ENV", k, "env"); env != "" {
		cfg.Env = env
	}
	if cfg.RedisNamespace == "" {
		cfg.RedisNamespace = DefaultRedisNamespace
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// PushConfigured reports whether all push relay settings are present.
func (c *Config) PushConfigured() bool {
	return c.PushEndpoint != "" && c.PushTeamID != "" && c.PushKeyID != "" && c.PushPrivateKeyPath != ""
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.RedisURL == "" {
		errs = append(errs, ErrMissingRedisURL)
	}
	if c.OwnerID == "" {
		errs = append(errs, ErrMissingOwnerID)
	}

	// Push settings are optional, but partial settings are a mistake.
	anyPush := c.PushEndpoint != "" || c.PushTeamID != "" || c.PushKeyID != "" || c.PushPrivateKeyPath != ""
	if anyPush && !c.PushConfigured() {
		errs = append(errs, ErrIncompletePushKeys)
	}

	return errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInt)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}
