// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
)

// DefaultShutdownTimeout bounds graceful shutdown when Deps leaves it unset.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start starts the RPC server, the optional HTTP server and workers, and
	// blocks until ctx is done, a client calls terminate or a server fails.
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers and runs the hooks.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	deps Deps

	httpServer *http.Server

	// workers and serve loops
	wg            sync.WaitGroup
	stopWorkers   context.CancelFunc
	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// namedHook represents a shutdown hook with a name for logging
type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given dependencies.
func NewManager(deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &manager{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Strs("rpc_hosts", m.deps.RPCHosts).
		Int("rpc_port", m.deps.RPCPort).
		Str("http_listen", m.deps.HTTPListen).
		Int("workers", len(m.deps.Workers)).
		Msg("Starting daemon manager")

	// Bind synchronously so address problems fail startup.
	lns, err := m.deps.RPCServer.Listen(ctx, m.deps.RPCHosts, m.deps.RPCPort)
	if err != nil {
		m.abortStart(ctx)
		return fmt.Errorf("failed to start RPC server: %w", err)
	}

	var httpLn net.Listener
	if m.deps.HTTPHandler != nil && m.deps.HTTPListen != "" {
		var lc net.ListenConfig
		httpLn, err = lc.Listen(ctx, "tcp", m.deps.HTTPListen)
		if err != nil {
			for _, ln := range lns {
				_ = ln.Close()
			}
			m.abortStart(ctx)
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	errChan := make(chan error, len(lns)+len(m.deps.Workers)+1)

	// Serve loops outlive ctx; Shutdown stops them.
	serveCtx := context.WithoutCancel(ctx)
	for _, ln := range lns {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.deps.RPCServer.Serve(serveCtx, ln); err != nil && !errors.Is(err, rpc.ErrServerClosed) {
				m.logger.Error().Err(err).Str("event", "rpc.server.failed").Msg("RPC server failed")
				errChan <- fmt.Errorf("RPC server: %w", err)
			}
		}()
	}

	if httpLn != nil {
		m.startHTTPServer(httpLn, errChan)
	}

	workerCtx, stopWorkers := context.WithCancel(serveCtx)
	m.mu.Lock()
	m.stopWorkers = stopWorkers
	m.mu.Unlock()
	for _, w := range m.deps.Workers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := w.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				m.logger.Error().Err(err).Str("worker", w.Name).Msg("worker failed")
				errChan <- fmt.Errorf("worker %s: %w", w.Name, err)
			}
		}()
	}

	// Wait for shutdown signal, terminate request or server error
	var cause error
	select {
	case cause = <-errChan:
		m.logger.Error().Err(cause).Msg("Server error, initiating shutdown")
	case <-m.deps.RPCServer.Terminated():
		m.logger.Info().Msg("Terminate requested over RPC")
	case <-ctx.Done():
		m.logger.Info().Msg("Shutdown signal received")
	}

	// Use a detached-but-bounded context so shutdown can complete even if parent is canceled.
	shutdownCtx, cancel := context.WithTimeout(serveCtx, m.deps.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		if cause != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(cause, err))
		}
		return err
	}
	return cause
}

// abortStart runs the hooks after a failed start so opened resources are
// released.
func (m *manager) abortStart(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		m.logger.Warn().Err(err).Msg("cleanup after failed start")
	}
}

func (m *manager) startHTTPServer(ln net.Listener, errChan chan<- error) {
	m.httpServer = &http.Server{
		Handler:           m.deps.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("HTTP server listening")

		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str("event", "http.server.failed").
				Msg("HTTP server failed")
			errChan <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	stopWorkers := m.stopWorkers
	m.mu.Unlock()

	m.logger.Info().Msg("Shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.ShutdownTimeout)
	defer cancel()

	var errs []error

	m.logger.Debug().Msg("Shutting down RPC server")
	if err := m.deps.RPCServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("RPC server shutdown: %w", err))
	}

	if m.httpServer != nil {
		m.logger.Debug().Msg("Shutting down HTTP server")
		if err := m.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	if stopWorkers != nil {
		stopWorkers()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("waiting for workers: %w", shutdownCtx.Err()))
	}

	// Execute shutdown hooks in reverse order (LIFO)
	m.mu.Lock()
	hooks := m.shutdownHooks
	m.mu.Unlock()
	m.logger.Debug().Int("hooks", len(hooks)).Msg("Executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		} else {
			m.logger.Debug().
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("Shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		m.logger.Error().
			Int("error_count", len(errs)).
			Msg("Shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Msg("Daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{
		name: name,
		hook: hook,
	})
	m.logger.Debug().Str("hook", name).Msg("Registered shutdown hook")
}
