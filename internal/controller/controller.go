// SPDX-License-Identifier: MIT

// Package controller exposes the wavemeter driver as the "HighFinesse" RPC
// target.
package controller

import (
	"context"

	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// TargetName is the name clients select during the handshake.
const TargetName = "HighFinesse"

const targetDoc = "Driver for HighFinesse wavemeters"

// Device is the driver surface reachable over RPC.
type Device interface {
	ID() (string, error)
	Ping() (bool, error)
	Status() (wlm.OperationState, error)
	Temperature() (float64, error)
	Pressure() (float64, error)
	Frequency(ch int) (wlm.Reading, error)
	SetExposureMode(ch int, auto bool) error
	StartMeasurement() error
	StopMeasurement() error
}

// SnapshotSource yields the latest monitor snapshot.
type SnapshotSource interface {
	Latest() (monitor.Snapshot, bool)
}

// Controller binds a Device to RPC methods.
type Controller struct {
	dev       Device
	snapshots SnapshotSource
}

// New creates a controller. snapshots may be nil when no monitor runs.
func New(dev Device, snapshots SnapshotSource) *Controller {
	return &Controller{dev: dev, snapshots: snapshots}
}

// Target builds the RPC target for the controller.
func (c *Controller) Target() *rpc.Target {
	t := rpc.NewTarget(targetDoc)
	t.Register(rpc.Method{
		Name:    "id",
		Doc:     ":returns: WLM identification string",
		Handler: c.id,
	})
	t.Register(rpc.Method{
		Name:    "ping",
		Handler: c.ping,
	})
	t.Register(rpc.Method{
		Name:    "init",
		Doc:     "Hook for async loop.",
		Handler: noop,
	})
	t.Register(rpc.Method{
		Name:    "close",
		Doc:     "Do what's needed to close.",
		Handler: noop,
	})
	t.Register(rpc.Method{
		Name:    "get_status",
		Doc:     "Returns the operation state: 0 stopped, 1 adjusting, 2 measuring.",
		Handler: c.status,
	})
	t.Register(rpc.Method{
		Name:    "get_temperature",
		Doc:     "Returns the temperature of the wavemeter in C",
		Handler: c.temperature,
	})
	t.Register(rpc.Method{
		Name: "get_pressure",
		Doc: "Returns the pressure inside the wavemeter in mBar\n" +
			":raises WLMException: with an error code of -1006 if the wavemeter does\n" +
			"  not support pressure measurements",
		Handler: c.pressure,
	})
	t.Register(rpc.Method{
		Name: "get_frequency",
		Doc: "Returns the frequency of the specified channel.\n\n" +
			":returns: the tuple (status, frequency) where status is a\n" +
			"  WLMMeasurementStatus and frequency is in Hz.",
		Params:  []string{"ch"},
		Handler: c.frequency,
	})
	t.Register(rpc.Method{
		Name:     "set_exposure_mode",
		Doc:      "Switches automatic exposure control of a channel on or off.",
		Params:   []string{"ch", "auto"},
		Defaults: []any{true},
		Handler:  c.setExposureMode,
	})
	t.Register(rpc.Method{
		Name:    "start_measurement",
		Doc:     "Starts continuous measurement.",
		Handler: c.startMeasurement,
	})
	t.Register(rpc.Method{
		Name:    "stop_measurement",
		Doc:     "Stops all measurement activity.",
		Handler: c.stopMeasurement,
	})
	t.Register(rpc.Method{
		Name:    "get_last_readings",
		Doc:     "Returns the latest monitor snapshot, or None when nothing was polled yet.",
		Handler: c.lastReadings,
	})
	return t
}

func noop(context.Context, rpc.Args) (any, error) { return nil, nil }

func (c *Controller) id(context.Context, rpc.Args) (any, error) {
	return c.dev.ID()
}

func (c *Controller) ping(context.Context, rpc.Args) (any, error) {
	return c.dev.Ping()
}

func (c *Controller) status(context.Context, rpc.Args) (any, error) {
	s, err := c.dev.Status()
	if err != nil {
		return nil, err
	}
	return int(s), nil
}

func (c *Controller) temperature(context.Context, rpc.Args) (any, error) {
	return c.dev.Temperature()
}

func (c *Controller) pressure(context.Context, rpc.Args) (any, error) {
	return c.dev.Pressure()
}

func (c *Controller) frequency(_ context.Context, args rpc.Args) (any, error) {
	ch, err := args.Int("ch")
	if err != nil {
		return nil, err
	}
	r, err := c.dev.Frequency(ch)
	if err != nil {
		return nil, err
	}
	return pyon.Tuple{int(r.Status), r.Hz}, nil
}

func (c *Controller) setExposureMode(_ context.Context, args rpc.Args) (any, error) {
	ch, err := args.Int("ch")
	if err != nil {
		return nil, err
	}
	auto, err := args.Bool("auto")
	if err != nil {
		return nil, err
	}
	return nil, c.dev.SetExposureMode(ch, auto)
}

func (c *Controller) startMeasurement(context.Context, rpc.Args) (any, error) {
	return nil, c.dev.StartMeasurement()
}

func (c *Controller) stopMeasurement(context.Context, rpc.Args) (any, error) {
	return nil, c.dev.StopMeasurement()
}

func (c *Controller) lastReadings(context.Context, rpc.Args) (any, error) {
	if c.snapshots == nil {
		return nil, nil
	}
	snap, ok := c.snapshots.Latest()
	if !ok {
		return nil, nil
	}
	return snap, nil
}
