// SPDX-License-Identifier: MIT

// Package wlm drives HighFinesse wavelength meters through the vendor's
// wlmData interface library.
package wlm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/jbqubit/ndsp-highfinesse/internal/log"
)

const (
	// DefaultStartTimeout bounds the wait for the WLM server application.
	DefaultStartTimeout = 10 * time.Second

	// SimulatedFrequency is reported on every channel in simulation.
	SimulatedFrequency = 123.456789e12

	simulatedTemperature = 25.0
	simulatedPressure    = 1013.25
	simulatedID          = "WLM simulator"
)

// Options configures a Driver.
type Options struct {
	Simulation bool

	// Library overrides the wlmData binding. When nil, OpenLibrary is used.
	Library Library

	StartTimeout time.Duration

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Driver talks to one wavemeter. All methods are safe for concurrent use;
// library calls are serialized.
type Driver struct {
	sim    bool
	logger zerolog.Logger

	mu      sync.Mutex
	lib     Library
	closed  bool
	version Version
	ccds    int

	// simulation state
	simState    OperationState
	simExposure map[int]bool
}

// New connects to the wavemeter, starting the WLM server application when
// it is not running.
func New(ctx context.Context, opts Options) (*Driver, error) {
	d := &Driver{
		sim:         opts.Simulation,
		logger:      xlog.WithComponent("wlm"),
		simState:    StateMeasurement,
		simExposure: make(map[int]bool),
	}
	if opts.Logger != nil {
		d.logger = *opts.Logger
	}

	if d.sim {
		d.logger.Info().Msg("simulation mode active")
		return d, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lib := opts.Library
	if lib == nil {
		var err error
		if lib, err = OpenLibrary(); err != nil {
			return nil, &Error{Msg: "failed to load WLM DLL (is HighFinesse software installed?)", Err: err}
		}
	}
	d.lib = lib

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	if err := d.ensureServer(timeout); err != nil {
		_ = lib.Close()
		return nil, err
	}
	d.logger.Info().Msg("connected to WLM server")

	if _, err := d.ID(); err != nil {
		_ = lib.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureServer(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lib.Instantiate(InstCheckForWLM, 0, 0, 0) != 0 {
		return nil
	}
	d.logger.Info().Msg("starting WLM server")
	res := int(d.lib.ControlWLMEx(CtrlWLMShow|CtrlWLMWait, 0, 0, int32(timeout.Milliseconds()), 1))
	codes := ControlResultStrings(res)
	if res&FlServerStarted == 0 {
		return newError(res, "error starting WLM server application: %v", codes)
	}
	for _, c := range codes {
		if c != "flServerStarted" {
			d.logger.Warn().Str("code", c).Msg("unexpected return code from ControlWLMEx")
		}
	}
	return nil
}

// Simulation reports whether the driver runs without hardware.
func (d *Driver) Simulation() bool { return d.sim }

// ID reads the device version and returns the identification string.
func (d *Driver) ID() (string, error) {
	if d.sim {
		return simulatedID, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", d.closedError()
	}

	v := Version{
		Model:   int(d.lib.GetWLMVersion(0)),
		HWRev:   int(d.lib.GetWLMVersion(1)),
		FWRev:   int(d.lib.GetWLMVersion(2)),
		FWBuild: int(d.lib.GetWLMVersion(3)),
	}
	if v.Model < 5 || v.Model > 10 {
		return "", newError(v.Model, "unrecognised WLM model: %d", v.Model)
	}
	d.version = v
	// WS/6 have one CCD; WS/7, WS/8 and WS/U have two.
	d.ccds = 1
	if v.Model >= 7 {
		d.ccds = 2
	}
	return v.String(), nil
}

// Version returns the version read by the last successful ID call.
func (d *Driver) Version() Version {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// NumCCDs returns the CCD count of the connected model, 0 in simulation.
func (d *Driver) NumCCDs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ccds
}

// Ping checks that the device answers.
func (d *Driver) Ping() (bool, error) {
	if d.sim {
		d.logger.Debug().Msg("ping simulation")
		return true, nil
	}
	if _, err := d.Status(); err != nil {
		d.logger.Error().Err(err).Msg("ping failed")
		return false, &Error{Msg: "ping failed", Err: err}
	}
	d.logger.Debug().Msg("ping successful")
	return true, nil
}

// Status returns the acquisition state.
func (d *Driver) Status() (OperationState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sim {
		return d.simState, nil
	}
	if d.closed {
		return 0, d.closedError()
	}
	return OperationState(d.lib.GetOperationState(0)), nil
}

// Temperature returns the internal temperature in degrees Celsius.
func (d *Driver) Temperature() (float64, error) {
	if d.sim {
		return simulatedTemperature, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, d.closedError()
	}
	t := d.lib.GetTemperature(0)
	if t < 0 {
		return 0, newError(int(t), "error reading WLM temperature: %s", ErrorString(int(t)))
	}
	return t, nil
}

// Pressure returns the internal pressure in mbar. Models without a pressure
// sensor fail with code ErrTempNotAvailable.
func (d *Driver) Pressure() (float64, error) {
	if d.sim {
		return simulatedPressure, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, d.closedError()
	}
	p := d.lib.GetPressure(0)
	if p < 0 {
		return 0, newError(int(p), "error reading WLM pressure: %s", ErrorString(int(p)))
	}
	return p, nil
}

// Frequency reads the frequency of a switch channel. Device error codes are
// reported through the reading status, not as errors.
func (d *Driver) Frequency(ch int) (Reading, error) {
	if ch < 1 {
		return Reading{}, &Error{Msg: "channel must be at least 1", Err: ErrInvalidChannel}
	}
	r := Reading{Channel: ch}
	if d.sim {
		r.Hz = SimulatedFrequency
		return r, nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Reading{}, d.closedError()
	}
	thz := d.lib.GetFrequencyNum(int32(ch), 0)
	d.mu.Unlock()

	switch code := int(thz); {
	case thz > 0:
		r.Status = StatusOkay
		r.Hz = thz * 1e12
	case code == ErrBigSignal:
		r.Status = StatusOverExposed
		d.logger.Warn().Int(xlog.FieldChannel, ch).Msg("OVER_EXPOSED")
	case code == ErrLowSignal:
		r.Status = StatusUnderExposed
		d.logger.Warn().Int(xlog.FieldChannel, ch).Msg("UNDER_EXPOSED")
	default:
		r.Status = StatusError
		d.logger.Error().Int(xlog.FieldChannel, ch).Str("code", ErrorString(code)).Msg("error getting frequency")
	}
	return r, nil
}

// SetExposureMode switches a channel between automatic and manual exposure.
func (d *Driver) SetExposureMode(ch int, auto bool) error {
	if ch < 1 {
		return &Error{Msg: "channel must be at least 1", Err: ErrInvalidChannel}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sim {
		d.simExposure[ch] = auto
		return nil
	}
	if d.closed {
		return d.closedError()
	}
	if res := int(d.lib.SetExposureModeNum(int32(ch), auto)); res != ResERRNoErr {
		return newError(res, "error setting exposure mode on channel %d: %s", ch, ResultString(res))
	}
	return nil
}

// StartMeasurement puts the wavemeter in measurement mode.
func (d *Driver) StartMeasurement() error {
	return d.operation(CtrlStartMeasurement, StateMeasurement)
}

// StopMeasurement stops all acquisition.
func (d *Driver) StopMeasurement() error {
	return d.operation(CtrlStopAll, StateStop)
}

func (d *Driver) operation(op uint16, simState OperationState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sim {
		d.simState = simState
		return nil
	}
	if d.closed {
		return d.closedError()
	}
	if res := int(d.lib.Operation(op)); res != ResERRNoErr {
		return newError(res, "operation %d failed: %s", op, ResultString(res))
	}
	return nil
}

// Close releases the interface library. It is safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.lib == nil {
		return nil
	}
	return d.lib.Close()
}

func (d *Driver) closedError() error {
	return &Error{Msg: "driver closed", Err: ErrClosed}
}
