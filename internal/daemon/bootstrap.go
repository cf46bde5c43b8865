// SPDX-License-Identifier: MIT

// Package daemon assembles the controller from configuration and manages its
// lifecycle.
package daemon

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jbqubit/ndsp-highfinesse/internal/api"
	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/controller"
	"github.com/jbqubit/ndsp-highfinesse/internal/health"
	"github.com/jbqubit/ndsp-highfinesse/internal/history"
	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
	"github.com/jbqubit/ndsp-highfinesse/internal/publish"
	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
	"github.com/jbqubit/ndsp-highfinesse/internal/telemetry"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// ServiceName identifies the process in logs and traces.
const ServiceName = "aqctl_highfinesse"

// minFreshness is the lower bound for the monitor freshness check.
const minFreshness = 10 * time.Second

// Runtime is the assembled controller.
type Runtime struct {
	Manager Manager
	RPC     *rpc.Server
	Driver  *wlm.Driver
	Health  *health.Manager

	// Monitor is nil when polling is disabled.
	Monitor *monitor.Monitor
}

// Options overrides pieces of the assembly. The zero value is the production
// setup.
type Options struct {
	// Library replaces the wlmData binding of the driver.
	Library wlm.Library
}

// Bootstrap builds every component cfg enables. Resources opened before an
// error are released before returning.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts Options) (_ *Runtime, err error) {
	logger := log.WithComponent("daemon")

	var hooks []namedHook
	defer func() {
		if err == nil {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer cancel()
		for i := len(hooks) - 1; i >= 0; i-- {
			if cerr := hooks[i].hook(cleanupCtx); cerr != nil {
				logger.Warn().Err(cerr).Str("hook", hooks[i].name).Msg("cleanup after failed startup")
			}
		}
	}()
	addHook := func(name string, hook ShutdownHook) {
		hooks = append(hooks, namedHook{name: name, hook: hook})
	}

	if err := health.PerformStartupChecks(health.StartupConfig{
		HistoryPath: cfg.History.Path,
		HTTPAddr:    cfg.HTTP.Listen,
	}); err != nil {
		return nil, err
	}

	hosts, err := rpc.ResolveBind(cfg.RPC.Bind, cfg.RPC.NoLocalhostBind)
	if err != nil {
		return nil, err
	}

	tracingService := ""
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		Attributes:     map[string]string{"wavemeter.simulation": strconv.FormatBool(cfg.Device.Simulation)},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry initialization failed, continuing without tracing")
	} else {
		addHook("telemetry", provider.Shutdown)
		if cfg.Telemetry.Enabled {
			tracingService = ServiceName
			logger.Info().
				Str("endpoint", cfg.Telemetry.Endpoint).
				Float64("sampling_rate", cfg.Telemetry.SamplingRate).
				Msg("Telemetry initialized")
		}
	}

	drv, err := wlm.New(ctx, wlm.Options{
		Simulation:   cfg.Device.Simulation,
		Library:      opts.Library,
		StartTimeout: cfg.Device.StartTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open wavemeter: %w", err)
	}
	addHook("wavemeter", func(context.Context) error { return drv.Close() })

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPingChecker("wavemeter", true, func(context.Context) error {
		_, err := drv.Ping()
		return err
	}))

	var (
		sinks []monitor.Sink
		hist  *history.Store
	)
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path, history.Config{BusyTimeout: cfg.History.BusyTimeout})
		if err != nil {
			return nil, err
		}
		addHook("history", func(context.Context) error { return hist.Close() })
		sinks = append(sinks, hist)
		hm.RegisterChecker(health.NewPingChecker("history", false, hist.Ping))
		logger.Info().Str(log.FieldPath, hist.Path()).Msg("history enabled")
	}

	if cfg.Redis.Addr != "" {
		pub, err := publish.New(ctx, publish.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		}, log.WithComponent("publish"))
		if err != nil {
			return nil, err
		}
		addHook("redis", func(context.Context) error { return pub.Close() })
		sinks = append(sinks, pub)
		hm.RegisterChecker(health.NewPingChecker("redis", false, pub.Ping))
	}

	var (
		mon     *monitor.Monitor
		workers []Worker
		ctrl    *controller.Controller
	)
	if cfg.Monitor.Enabled {
		mon = monitor.New(drv, MonitorConfig(cfg.Monitor), sinks...)
		workers = append(workers, Worker{Name: "monitor", Run: mon.Run})
		hm.RegisterChecker(health.NewBreakerChecker("monitor_breaker", mon.BreakerState))
		hm.RegisterChecker(health.NewFreshnessChecker("monitor_freshness",
			max(5*cfg.Monitor.Interval, minFreshness),
			func() (time.Time, bool) {
				snap, ok := mon.Latest()
				return snap.Time, ok
			}))
		ctrl = controller.New(drv, mon)
	} else {
		ctrl = controller.New(drv, nil)
	}
	if hist != nil {
		historyLogger := log.WithComponent("history")
		workers = append(workers, Worker{Name: "history_retention", Run: func(ctx context.Context) error {
			return hist.RunRetention(ctx, cfg.History.Retention, cfg.History.PruneInterval, historyLogger)
		}})
	}

	srv := rpc.NewServer(
		map[string]*rpc.Target{controller.TargetName: ctrl.Target()},
		rpc.WithAllowParallel(cfg.RPC.AllowParallel),
		rpc.WithMaxLineSize(cfg.RPC.MaxLineSize),
		rpc.WithMaxConnections(cfg.RPC.MaxConnections),
		rpc.WithCallRate(rate.Limit(cfg.RPC.CallRate), cfg.RPC.CallBurst),
	)

	deps := Deps{
		Logger:          logger,
		RPCServer:       srv,
		RPCHosts:        hosts,
		RPCPort:         cfg.RPC.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Workers:         workers,
	}
	if cfg.HTTP.Listen != "" {
		apiDeps := api.Deps{Health: hm, Device: drv}
		if mon != nil {
			apiDeps.Readings = mon
		}
		if hist != nil {
			apiDeps.History = hist
		}
		deps.HTTPListen = cfg.HTTP.Listen
		deps.HTTPHandler = api.New(api.Config{
			Version:           cfg.Version,
			Target:            controller.TargetName,
			TracingService:    tracingService,
			RateLimitRequests: cfg.HTTP.RateLimitRequests,
			RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		}, apiDeps).Handler()
	}

	mgr, err := NewManager(deps)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}
	// the manager owns the resources from here on
	hooks = nil

	return &Runtime{
		Manager: mgr,
		RPC:     srv,
		Driver:  drv,
		Health:  hm,
		Monitor: mon,
	}, nil
}

// MonitorConfig converts the configuration section into polling settings.
func MonitorConfig(c config.MonitorConfig) monitor.Config {
	return monitor.Config{
		Interval:         c.Interval,
		Channels:         c.Channels,
		Environment:      c.Environment,
		BreakerThreshold: c.BreakerThreshold,
		BreakerReset:     c.BreakerReset,
		SinkTimeout:      c.SinkTimeout,
	}
}
