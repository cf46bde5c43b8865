// SPDX-License-Identifier: MIT

// Package monitor polls the wavemeter in the background and fans each
// snapshot out to the configured sinks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	xlog "github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/metrics"
	"github.com/jbqubit/ndsp-highfinesse/internal/resilience"
	"github.com/jbqubit/ndsp-highfinesse/internal/telemetry"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// ErrNoChannels is returned by Validate for an empty channel list.
var ErrNoChannels = errors.New("monitor: no channels configured")

// Reader is the device surface the monitor needs.
type Reader interface {
	Frequency(ch int) (wlm.Reading, error)
	Temperature() (float64, error)
	Pressure() (float64, error)
}

// Sink receives every successful snapshot.
type Sink interface {
	Name() string
	Record(ctx context.Context, s Snapshot) error
}

// Config controls polling.
type Config struct {
	Interval time.Duration
	Channels []int

	// Environment enables temperature and pressure reads.
	Environment bool

	BreakerThreshold int
	BreakerReset     time.Duration
	SinkTimeout      time.Duration
}

// Validate checks the polling parameters.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("monitor: interval must be positive, got %s", c.Interval)
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range c.Channels {
		if ch < 1 {
			return fmt.Errorf("monitor: invalid channel %d", ch)
		}
	}
	return nil
}

// Monitor polls a Reader on a fixed interval.
type Monitor struct {
	reader  Reader
	sinks   []Sink
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	cfg    Config
	latest *Snapshot

	reconfigure chan struct{}
}

// New creates a monitor. It does not start polling; call Run.
func New(reader Reader, cfg Config, sinks ...Sink) *Monitor {
	logger := xlog.WithComponent("monitor")
	m := &Monitor{
		reader:      reader,
		sinks:       sinks,
		tracer:      telemetry.Tracer("monitor"),
		logger:      logger,
		now:         time.Now,
		cfg:         normalize(cfg),
		reconfigure: make(chan struct{}, 1),
	}
	m.breaker = resilience.NewCircuitBreaker("wavemeter", cfg.BreakerThreshold, cfg.BreakerReset,
		resilience.WithStateChange(func(from, to resilience.State) {
			logger.Warn().
				Str(xlog.FieldEvent, "monitor.breaker").
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("device circuit breaker changed state")
		}))
	return m
}

func normalize(cfg Config) Config {
	cfg.Channels = slices.Clone(cfg.Channels)
	slices.Sort(cfg.Channels)
	cfg.Channels = slices.Compact(cfg.Channels)
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	return cfg
}

// Config returns the active configuration.
func (m *Monitor) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.cfg
	cfg.Channels = slices.Clone(cfg.Channels)
	return cfg
}

// UpdateConfig swaps interval, channels and environment reads. Breaker
// settings are fixed at construction.
func (m *Monitor) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = normalize(cfg)
	m.mu.Unlock()

	select {
	case m.reconfigure <- struct{}{}:
	default:
	}
	m.logger.Info().Ints("channels", cfg.Channels).Dur("interval", cfg.Interval).Msg("monitor reconfigured")
	return nil
}

// Latest returns the last successful snapshot.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}

// BreakerState reports the device circuit breaker state.
func (m *Monitor) BreakerState() resilience.State {
	return m.breaker.State()
}

// Run polls until ctx is done. It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Config().Validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(m.Config().Interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.Config().Interval).Ints("channels", m.Config().Channels).Msg("monitor started")
	m.pollLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return nil
		case <-m.reconfigure:
			ticker.Reset(m.Config().Interval)
		case <-ticker.C:
			m.pollLogged(ctx)
		}
	}
}

func (m *Monitor) pollLogged(ctx context.Context) {
	if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		m.logger.Error().Err(err).Str(xlog.FieldEvent, "monitor.poll_failed").Msg("poll failed")
	}
}

// Poll runs one cycle: read the device, store the snapshot and hand it to
// the sinks. Sink failures are logged and counted but do not fail the poll.
func (m *Monitor) Poll(ctx context.Context) (Snapshot, error) {
	cfg := m.Config()
	ctx, span := m.tracer.Start(ctx, "monitor.poll", trace.WithAttributes(telemetry.PollAttributes(len(cfg.Channels))...))
	defer span.End()

	var snap Snapshot
	err := m.breaker.Execute(ctx, func(context.Context) error {
		var err error
		snap, err = m.read(cfg)
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordMonitorPoll("skipped")
		span.SetStatus(codes.Error, "circuit open")
		return Snapshot{}, err
	case err != nil:
		metrics.RecordMonitorPoll("failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}
	metrics.RecordMonitorPoll("success")

	m.mu.Lock()
	m.latest = &snap
	m.mu.Unlock()

	m.record(ctx, cfg, snap)
	return snap, nil
}

func (m *Monitor) read(cfg Config) (Snapshot, error) {
	snap := Snapshot{Time: m.now().UTC(), Readings: make([]wlm.Reading, 0, len(cfg.Channels))}
	for _, ch := range cfg.Channels {
		r, err := m.reader.Frequency(ch)
		if err != nil {
			return Snapshot{}, fmt.Errorf("channel %d: %w", ch, err)
		}
		metrics.RecordFrequency(ch, r.Status.String(), r.Hz)
		snap.Readings = append(snap.Readings, r)
	}
	if !cfg.Environment {
		return snap, nil
	}

	temp, err := m.reader.Temperature()
	if err != nil {
		return Snapshot{}, fmt.Errorf("temperature: %w", err)
	}
	metrics.SetTemperature(temp)
	snap.TemperatureC = &temp

	p, err := m.reader.Pressure()
	var werr *wlm.Error
	switch {
	case err == nil:
		metrics.SetPressure(p)
		snap.PressureMbar = &p
	case errors.As(err, &werr) && werr.Code == wlm.ErrTempNotAvailable:
		// no pressure sensor on this model
	default:
		return Snapshot{}, fmt.Errorf("pressure: %w", err)
	}
	return snap, nil
}

func (m *Monitor) record(ctx context.Context, cfg Config, snap Snapshot) {
	if len(m.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.SinkTimeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range m.sinks {
		g.Go(func() error {
			if err := sink.Record(ctx, snap); err != nil {
				metrics.RecordSinkError(sink.Name())
				m.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("failed to record snapshot")
			}
			return nil
		})
	}
	_ = g.Wait()
}
