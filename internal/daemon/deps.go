// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RPCServer is the pc_rpc server surface the manager drives.
type RPCServer interface {
	Listen(ctx context.Context, hosts []string, port int) ([]net.Listener, error)
	Serve(ctx context.Context, ln net.Listener) error
	Shutdown(ctx context.Context) error
	Terminated() <-chan struct{}
}

// Worker is a background loop that runs until its context is cancelled.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	RPCServer RPCServer

	// RPCHosts are the resolved bind addresses; "" means all interfaces.
	RPCHosts []string
	RPCPort  int

	// HTTPHandler serves the side channel when HTTPListen is set.
	HTTPHandler http.Handler
	HTTPListen  string

	// ShutdownTimeout bounds Shutdown. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Workers []Worker
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.RPCServer == nil {
		return ErrMissingRPCServer
	}
	// Config validation is done by config.Loader
	return nil
}
