// SPDX-License-Identifier: MIT

// Package config loads the controller configuration from defaults, a YAML
// file, NDSP_* environment variables and command-line overrides.
package config

import "time"

// AppConfig is the complete controller configuration.
type AppConfig struct {
	// LogLevel is used when no -v/-q flag is given.
	LogLevel string `yaml:"logLevel,omitempty"`

	RPC       RPCConfig       `yaml:"rpc"`
	Device    DeviceConfig    `yaml:"device"`
	HTTP      HTTPConfig      `yaml:"http"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	History   HistoryConfig   `yaml:"history"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is the binary version, never read from file.
	Version string `yaml:"-"`
}

// RPCConfig configures the pc_rpc server.
type RPCConfig struct {
	Port int `yaml:"port"`

	// Bind lists extra addresses to listen on; "*" means all interfaces.
	Bind            []string `yaml:"bind,omitempty"`
	NoLocalhostBind bool     `yaml:"noLocalhostBind"`

	AllowParallel bool `yaml:"allowParallel"`
	MaxLineSize   int  `yaml:"maxLineSize"`

	// MaxConnections caps open client connections per listener; 0 is unlimited.
	MaxConnections int `yaml:"maxConnections"`

	// CallRate limits requests per connection; 0 disables the limit.
	CallRate  float64 `yaml:"callRate"`
	CallBurst int     `yaml:"callBurst"`
}

// DeviceConfig configures the wavemeter driver.
type DeviceConfig struct {
	Simulation   bool          `yaml:"simulation"`
	StartTimeout time.Duration `yaml:"startTimeout"`
}

// HTTPConfig configures the side-channel HTTP server. An empty Listen
// disables it.
type HTTPConfig struct {
	Listen            string        `yaml:"listen,omitempty"`
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// MonitorConfig configures background polling.
type MonitorConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	Channels         []int         `yaml:"channels"`
	Environment      bool          `yaml:"environment"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
	SinkTimeout      time.Duration `yaml:"sinkTimeout"`
}

// HistoryConfig configures the SQLite reading log. An empty Path disables
// it.
type HistoryConfig struct {
	Path          string        `yaml:"path,omitempty"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"pruneInterval"`
	BusyTimeout   time.Duration `yaml:"busyTimeout"`
}

// RedisConfig configures snapshot publishing. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		RPC: RPCConfig{
			Port:           3260,
			MaxLineSize:    16 << 20,
			MaxConnections: 128,
			CallBurst:      10,
		},
		Device: DeviceConfig{
			StartTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   5 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:         time.Second,
			Channels:         []int{1},
			Environment:      true,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
			SinkTimeout:      2 * time.Second,
		},
		History: HistoryConfig{
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
			BusyTimeout:   5 * time.Second,
		},
		Redis: RedisConfig{
			Prefix: "ndsp:highfinesse",
			TTL:    time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
