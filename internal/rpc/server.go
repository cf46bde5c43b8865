// SPDX-License-Identifier: MIT

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	xlog "github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/metrics"
	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
	"github.com/jbqubit/ndsp-highfinesse/internal/telemetry"
)

// Option configures a Server.
type Option func(*Server)

// WithDescription sets the free-form description sent in the banner.
func WithDescription(desc string) Option {
	return func(s *Server) { s.description = desc }
}

// WithBuiltinTerminate controls whether clients may call "terminate" to
// ask the process to exit. Enabled by default.
func WithBuiltinTerminate(enabled bool) Option {
	return func(s *Server) { s.builtinTerminate = enabled }
}

// WithAllowParallel lets calls from different connections run
// concurrently. By default one call executes at a time server-wide.
func WithAllowParallel(enabled bool) Option {
	return func(s *Server) { s.allowParallel = enabled }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxLineSize bounds a single request line.
func WithMaxLineSize(n int) Option {
	return func(s *Server) { s.maxLine = n }
}

// WithMaxConnections caps the connections served at once per listener.
// Further clients wait in the accept backlog. Zero means no cap.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// WithCallRate limits the request rate of each connection. A zero limit
// disables limiting.
func WithCallRate(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.callRate = limit
		s.callBurst = burst
	}
}

// Server exposes targets over the pc_rpc line protocol.
type Server struct {
	targets          map[string]*Target
	names            []string
	description      string
	builtinTerminate bool
	allowParallel    bool
	maxLine          int
	maxConns         int
	callRate         rate.Limit
	callBurst        int
	logger           zerolog.Logger
	tracer           trace.Tracer
	callLock         *semaphore.Weighted

	terminated    chan struct{}
	terminateOnce sync.Once

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

// NewServer creates a server for the given named targets.
func NewServer(targets map[string]*Target, opts ...Option) *Server {
	s := &Server{
		targets:          targets,
		builtinTerminate: true,
		maxLine:          DefaultMaxLineSize,
		logger:           xlog.WithComponent("rpc"),
		tracer:           telemetry.Tracer("rpc"),
		callLock:         semaphore.NewWeighted(1),
		terminated:       make(chan struct{}),
		listeners:        make(map[net.Listener]struct{}),
		conns:            make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for name := range targets {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Terminated is closed once a client called the builtin terminate.
func (s *Server) Terminated() <-chan struct{} { return s.terminated }

func (s *Server) terminate() {
	s.terminateOnce.Do(func() {
		s.logger.Info().Str(xlog.FieldEvent, "rpc.terminate").Msg("termination requested by client")
		close(s.terminated)
	})
}

// Addrs returns the addresses of the active listeners.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	return addrs
}

// Listen binds port on every host. An empty host means all interfaces.
// Hosts that fail to bind are logged and skipped; an error is returned only
// when nothing could be bound.
func (s *Server) Listen(ctx context.Context, hosts []string, port int) ([]net.Listener, error) {
	if len(hosts) == 0 {
		hosts = []string{""}
	}
	var lc net.ListenConfig
	var lns []net.Listener
	var errs []error
	for _, host := range hosts {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			s.logger.Warn().Err(err).Str(xlog.FieldAddr, addr).Msg("failed to bind")
			errs = append(errs, err)
			continue
		}
		lns = append(lns, ln)
	}
	if len(lns) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoListeners, errors.Join(errs...))
	}
	return lns, nil
}

// ListenAndServe binds every host and serves until ctx is cancelled, a
// listener fails or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context, hosts []string, port int) error {
	lns, err := s.Listen(ctx, hosts, port)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range lns {
		g.Go(func() error { return s.Serve(gctx, ln) })
	}
	return g.Wait()
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called. It always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info().Str(xlog.FieldAddr, ln.Addr().String()).Strs("targets", s.names).Msg("RPC server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Shutdown closes all listeners and connections and waits for connection
// handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
	_ = ln.Close()
}

func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrackConn(conn)
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	metrics.RPCConnectionOpened()
	defer metrics.RPCConnectionClosed()

	connID := uuid.NewString()
	ctx = xlog.ContextWithConnID(ctx, connID)
	logger := s.logger.With().
		Str(xlog.FieldConnID, connID).
		Str(xlog.FieldRemoteAddr, conn.RemoteAddr().String()).
		Logger()

	lc := newLineConn(conn, s.maxLine)

	line, err := lc.readLine()
	if err != nil || line != initLine {
		metrics.RecordRPCHandshake("bad_handshake")
		logger.Debug().Err(err).Msg("rejecting connection: bad handshake")
		return
	}
	banner := map[string]any{
		"targets":     stringsToAny(s.names),
		"description": docOrNone(s.description),
	}
	if err := lc.writeValue(banner); err != nil {
		logger.Debug().Err(err).Msg("failed to send banner")
		return
	}

	name, err := lc.readLine()
	if err != nil {
		metrics.RecordRPCHandshake("bad_handshake")
		return
	}
	target, ok := s.targets[name]
	if !ok {
		metrics.RecordRPCHandshake("unknown_target")
		logger.Warn().Str(xlog.FieldTarget, name).Msg("rejecting connection: unknown target")
		return
	}
	if err := lc.writeValue(target.methodSet(s.builtinTerminate)); err != nil {
		return
	}
	metrics.RecordRPCHandshake("accepted")
	logger = logger.With().Str(xlog.FieldTarget, name).Logger()
	logger.Debug().Msg("client connected")

	var limiter *rate.Limiter
	if s.callRate > 0 {
		limiter = rate.NewLimiter(s.callRate, max(s.callBurst, 1))
	}

	for {
		line, err := lc.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug().Err(err).Msg("connection read failed")
			}
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		req, err := pyon.Decode(line)
		if err != nil {
			logger.Warn().Err(err).Msg("closing connection: undecodable request")
			return
		}
		reply := s.encodeReply(s.process(ctx, logger, name, target, req))
		if err := lc.writeLine(reply); err != nil {
			logger.Debug().Err(err).Msg("connection write failed")
			return
		}
	}
}

// encodeReply turns a reply into a line, replacing it with a failure when
// the return value has no pyon form.
func (s *Server) encodeReply(reply map[string]any) string {
	line, err := pyon.Encode(reply)
	if err == nil {
		return line
	}
	line, err = pyon.Encode(failure(&Fault{Class: "TypeError", Message: err.Error()}, nil))
	if err != nil {
		// failure() only produces strings and lists.
		panic(err)
	}
	return line
}

func (s *Server) process(ctx context.Context, logger zerolog.Logger, targetName string, target *Target, req any) map[string]any {
	obj, ok := req.(map[string]any)
	if !ok {
		return failure(ValueError("request must be a dict, not %s", pyTypeName(req)), nil)
	}
	action, _ := obj["action"].(string)
	switch action {
	case "get_rpc_method_list":
		return success(target.describe())
	case "call":
		name, _ := obj["name"].(string)
		ret, err := s.call(ctx, logger, targetName, target, name, obj["args"], obj["kwargs"])
		if err != nil {
			return failure(err, traceback(targetName, name, err))
		}
		return success(ret)
	default:
		return failure(ValueError("unknown action: %q", action), nil)
	}
}

func (s *Server) call(ctx context.Context, logger zerolog.Logger, targetName string, target *Target, name string, rawArgs, rawKwargs any) (ret any, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "rpc.call "+targetName+"."+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(telemetry.RPCAttributes(targetName, name, xlog.ConnIDFromContext(ctx))...),
	)
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
			class := exceptionClass(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(telemetry.ErrorAttributes(class)...)
			logger.Debug().Err(err).Str(xlog.FieldMethod, name).Str("class", class).Msg("call failed")
		}
		span.End()
		metrics.ObserveRPCCall(targetName, name, status, time.Since(start))
	}()

	args, err := positional(name, rawArgs)
	if err != nil {
		return nil, err
	}
	kwargs, err := keywords(name, rawKwargs)
	if err != nil {
		return nil, err
	}

	if s.builtinTerminate && name == "terminate" {
		s.terminate()
		return nil, nil
	}

	m, ok := target.lookup(name)
	if !ok {
		return nil, AttributeError("'%s' object has no attribute '%s'", targetName, name)
	}

	if !s.allowParallel {
		if err := s.callLock.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.callLock.Release(1)
	}

	logger.Trace().Str(xlog.FieldMethod, name).Msg("call")
	ret, err = m.invoke(ctx, args, kwargs)
	var pe *panicError
	if errors.As(err, &pe) {
		logger.Error().Str(xlog.FieldMethod, name).Interface("panic", pe.value).Bytes("stack", pe.stack).Msg("method panicked")
	}
	return ret, err
}

func positional(method string, v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case pyon.Tuple:
		return x, nil
	}
	return nil, TypeError("%s() argument after * must be an iterable, not %s", method, pyTypeName(v))
}

func keywords(method string, v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return x, nil
	}
	return nil, TypeError("%s() argument after ** must be a mapping, not %s", method, pyTypeName(v))
}

func success(ret any) map[string]any {
	return map[string]any{"status": "ok", "ret": ret}
}

func failure(err error, tb []string) map[string]any {
	if len(tb) == 0 {
		tb = []string{fmt.Sprintf("%s: %s\n", exceptionClass(err), err.Error())}
	}
	lines := make([]any, 0, len(tb))
	for _, l := range tb {
		lines = append(lines, l)
	}
	return map[string]any{
		"status": "failed",
		"exception": map[string]any{
			"class":     exceptionClass(err),
			"message":   err.Error(),
			"traceback": lines,
		},
	}
}

func traceback(target, method string, err error) []string {
	tb := []string{fmt.Sprintf("in call to %s.%s\n", target, method)}
	var pe *panicError
	if errors.As(err, &pe) {
		for _, l := range strings.SplitAfter(string(pe.stack), "\n") {
			if l != "" {
				tb = append(tb, l)
			}
		}
	}
	return append(tb, fmt.Sprintf("%s: %s\n", exceptionClass(err), err.Error()))
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
