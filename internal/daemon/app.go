// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
)

// MonitorUpdater receives polling settings after a config reload.
type MonitorUpdater interface {
	UpdateConfig(cfg monitor.Config) error
}

// LevelResolver maps the configured log level to the effective one, letting
// command-line verbosity win.
type LevelResolver func(configured string) (string, error)

// App owns the long-lived runtime lifecycle (watchers, reload wiring)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	monitor      MonitorUpdater
	resolveLevel LevelResolver
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder and mon may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, mon MonitorUpdater, resolveLevel LevelResolver) *App {
	if resolveLevel == nil {
		resolveLevel = func(configured string) (string, error) { return log.ResolveLevel(configured, 0, 0) }
	}
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		monitor:      mon,
		resolveLevel: resolveLevel,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until the manager
// stops, either because ctx is cancelled, a client asked to terminate or a
// server failed.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Wait()

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Main server lifecycle. Returning stops the other goroutines.
	g.Go(func() error {
		defer cancel()
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// apply hot-applies the settings that do not need a restart.
func (a *App) apply(cfg config.AppConfig) {
	if name, err := a.resolveLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Msg("keeping current log level")
	} else if level, err := zerolog.ParseLevel(name); err == nil {
		log.SetLevel(level)
	}

	if a.monitor != nil && cfg.Monitor.Enabled {
		if err := a.monitor.UpdateConfig(MonitorConfig(cfg.Monitor)); err != nil {
			a.logger.Warn().Err(err).Msg("monitor settings not applied")
		}
	}
}
