// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigHolder holds configuration with atomic reloading capability.
// Only the log level and monitor settings take effect without a restart;
// listeners decide what to apply.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewConfigHolder creates a holder with the initially loaded configuration.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		logger:   log.WithComponent("config"),
		debounce: reloadDebounce,
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from file and validates it.
// If loading fails the old configuration is kept and an error is returned.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file for changes until ctx is done. The
// parent directory is watched so atomic replacements are seen too. Without a
// config file this is a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Debug().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (no config file)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, filepath.Clean(path))
	return nil
}

// Wait blocks until the watch loop started by StartWatcher has exited.
func (h *ConfigHolder) Wait() {
	if h.done != nil {
		<-h.done
	}
}

func (h *ConfigHolder) watchLoop(ctx context.Context, path string) {
	defer close(h.done)
	defer func() { _ = h.watcher.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(log.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().
					Err(err).
					Str(log.FieldEvent, "config.auto_reload_failed").
					Msg("automatic config reload failed")
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(log.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// RegisterListener registers a channel to receive config reload
// notifications. Sends never block; a full channel misses the update.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notifyListeners(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()

	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(log.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// RestartRequired reports settings that differ between old and newCfg but
// only apply at startup.
func RestartRequired(old, newCfg AppConfig) []string {
	var fields []string
	if old.RPC.Port != newCfg.RPC.Port || !slices.Equal(old.RPC.Bind, newCfg.RPC.Bind) ||
		old.RPC.NoLocalhostBind != newCfg.RPC.NoLocalhostBind {
		fields = append(fields, "rpc")
	}
	if old.Device != newCfg.Device {
		fields = append(fields, "device")
	}
	if old.HTTP != newCfg.HTTP {
		fields = append(fields, "http")
	}
	if old.Monitor.Enabled != newCfg.Monitor.Enabled {
		fields = append(fields, "monitor.enabled")
	}
	if old.History != newCfg.History {
		fields = append(fields, "history")
	}
	if old.Redis != newCfg.Redis {
		fields = append(fields, "redis")
	}
	if old.Telemetry != newCfg.Telemetry {
		fields = append(fields, "telemetry")
	}
	return fields
}

func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: logLevel")
	}
	if old.Monitor.Interval != newCfg.Monitor.Interval {
		h.logger.Info().
			Dur("old", old.Monitor.Interval).
			Dur("new", newCfg.Monitor.Interval).
			Msg("config changed: monitor.interval")
	}
	if !slices.Equal(old.Monitor.Channels, newCfg.Monitor.Channels) {
		h.logger.Info().
			Ints("old", old.Monitor.Channels).
			Ints("new", newCfg.Monitor.Channels).
			Msg("config changed: monitor.channels")
	}
	if fields := RestartRequired(old, newCfg); len(fields) > 0 {
		h.logger.Warn().
			Strs("sections", fields).
			Msg("configuration changes require a restart to take effect")
	}
}
