// SPDX-License-Identifier: MIT

package config

import (
	"strings"

	"github.com/jbqubit/ndsp-highfinesse/internal/validate"
)

// maxChannel is the highest switch channel of the supported models.
const maxChannel = 8

// Validate checks a complete configuration and reports every problem found.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)

	v.Port("rpc.port", cfg.RPC.Port)
	for _, b := range cfg.RPC.Bind {
		v.Require(strings.TrimSpace(b) != "", "rpc.bind", "bind address cannot be empty", b)
	}
	v.Require(!cfg.RPC.NoLocalhostBind || len(cfg.RPC.Bind) > 0,
		"rpc.noLocalhostBind", "requires at least one rpc.bind address", true)
	v.Range("rpc.maxLineSize", cfg.RPC.MaxLineSize, 1024, 1<<30)
	v.NonNegative("rpc.maxConnections", cfg.RPC.MaxConnections)
	v.NonNegativeFloat("rpc.callRate", cfg.RPC.CallRate)
	if cfg.RPC.CallRate > 0 {
		v.Positive("rpc.callBurst", cfg.RPC.CallBurst)
	}

	v.PositiveDuration("device.startTimeout", cfg.Device.StartTimeout)

	if cfg.HTTP.Listen != "" {
		v.HostPort("http.listen", cfg.HTTP.Listen, true)
		v.NonNegative("http.rateLimitRequests", cfg.HTTP.RateLimitRequests)
		if cfg.HTTP.RateLimitRequests > 0 {
			v.PositiveDuration("http.rateLimitWindow", cfg.HTTP.RateLimitWindow)
		}
		v.PositiveDuration("http.shutdownTimeout", cfg.HTTP.ShutdownTimeout)
	}

	if cfg.Monitor.Enabled {
		validateMonitor(v, cfg.Monitor)
	}

	if cfg.History.Path != "" {
		v.Require(cfg.Monitor.Enabled, "history.path", "requires monitor.enabled", cfg.History.Path)
		v.PositiveDuration("history.retention", cfg.History.Retention)
		v.PositiveDuration("history.pruneInterval", cfg.History.PruneInterval)
		v.PositiveDuration("history.busyTimeout", cfg.History.BusyTimeout)
	}

	if cfg.Redis.Addr != "" {
		v.Require(cfg.Monitor.Enabled, "redis.addr", "requires monitor.enabled", cfg.Redis.Addr)
		v.HostPort("redis.addr", cfg.Redis.Addr, false)
		v.Range("redis.db", cfg.Redis.DB, 0, 15)
		v.NotEmpty("redis.prefix", cfg.Redis.Prefix)
		v.PositiveDuration("redis.ttl", cfg.Redis.TTL)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.HostPort("telemetry.endpoint", cfg.Telemetry.Endpoint, false)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}

func validateMonitor(v *validate.Validator, m MonitorConfig) {
	v.PositiveDuration("monitor.interval", m.Interval)
	v.Channels("monitor.channels", m.Channels, maxChannel)
	v.Positive("monitor.breakerThreshold", m.BreakerThreshold)
	v.PositiveDuration("monitor.breakerReset", m.BreakerReset)
	v.PositiveDuration("monitor.sinkTimeout", m.SinkTimeout)
}
