// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override applies a command-line setting after file and environment.
type Override func(*AppConfig)

// Loader handles configuration loading with precedence
// overrides > environment > file > defaults.
type Loader struct {
	configPath string
	version    string
	overrides  []Override
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath, version string, overrides ...Override) *Loader {
	return &Loader{configPath: configPath, version: version, overrides: overrides}
}

// Path returns the config file path, empty when none is used.
func (l *Loader) Path() string { return l.configPath }

// Load builds and validates the configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)

	for _, o := range l.overrides {
		o(&cfg)
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing: unknown fields
// and multiple documents are rejected.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %q (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

// mergeEnv applies NDSP_* environment variables.
func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.RPC.Port = ParseInt(EnvPrefix+"RPC_PORT", cfg.RPC.Port)
	cfg.RPC.Bind = ParseStringList(EnvPrefix+"RPC_BIND", cfg.RPC.Bind)
	cfg.RPC.NoLocalhostBind = ParseBool(EnvPrefix+"RPC_NO_LOCALHOST_BIND", cfg.RPC.NoLocalhostBind)
	cfg.RPC.AllowParallel = ParseBool(EnvPrefix+"RPC_ALLOW_PARALLEL", cfg.RPC.AllowParallel)
	cfg.RPC.MaxLineSize = ParseInt(EnvPrefix+"RPC_MAX_LINE_SIZE", cfg.RPC.MaxLineSize)
	cfg.RPC.MaxConnections = ParseInt(EnvPrefix+"RPC_MAX_CONNECTIONS", cfg.RPC.MaxConnections)
	cfg.RPC.CallRate = ParseFloat(EnvPrefix+"RPC_CALL_RATE", cfg.RPC.CallRate)
	cfg.RPC.CallBurst = ParseInt(EnvPrefix+"RPC_CALL_BURST", cfg.RPC.CallBurst)

	cfg.Device.Simulation = ParseBool(EnvPrefix+"SIMULATION", cfg.Device.Simulation)
	cfg.Device.StartTimeout = ParseDuration(EnvPrefix+"DEVICE_START_TIMEOUT", cfg.Device.StartTimeout)

	cfg.HTTP.Listen = ParseString(EnvPrefix+"HTTP_LISTEN", cfg.HTTP.Listen)
	cfg.HTTP.RateLimitRequests = ParseInt(EnvPrefix+"HTTP_RATE_LIMIT", cfg.HTTP.RateLimitRequests)
	cfg.HTTP.RateLimitWindow = ParseDuration(EnvPrefix+"HTTP_RATE_LIMIT_WINDOW", cfg.HTTP.RateLimitWindow)

	cfg.Monitor.Enabled = ParseBool(EnvPrefix+"MONITOR_ENABLED", cfg.Monitor.Enabled)
	cfg.Monitor.Interval = ParseDuration(EnvPrefix+"MONITOR_INTERVAL", cfg.Monitor.Interval)
	cfg.Monitor.Channels = ParseIntList(EnvPrefix+"MONITOR_CHANNELS", cfg.Monitor.Channels)
	cfg.Monitor.Environment = ParseBool(EnvPrefix+"MONITOR_ENVIRONMENT", cfg.Monitor.Environment)

	cfg.History.Path = ParseString(EnvPrefix+"HISTORY_PATH", cfg.History.Path)
	cfg.History.Retention = ParseDuration(EnvPrefix+"HISTORY_RETENTION", cfg.History.Retention)

	cfg.Redis.Addr = ParseString(EnvPrefix+"REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString(EnvPrefix+"REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt(EnvPrefix+"REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = ParseString(EnvPrefix+"REDIS_PREFIX", cfg.Redis.Prefix)
	cfg.Redis.TTL = ParseDuration(EnvPrefix+"REDIS_TTL", cfg.Redis.TTL)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString(EnvPrefix+"TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
}
