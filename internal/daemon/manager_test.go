// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

// waitForRPC returns the first RPC address once the server listens.
func waitForRPC(t *testing.T, srv *rpc.Server) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addrs := srv.Addrs()
		if len(addrs) == 0 {
			return false
		}
		addr = addrs[0].String()
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return addr
}

func newEchoServer() *rpc.Server {
	t := rpc.NewTarget("echo")
	t.Register(rpc.Method{
		Name:   "echo",
		Params: []string{"x"},
		Handler: func(_ context.Context, a rpc.Args) (any, error) {
			v, _ := a.Value("x")
			return v, nil
		},
	})
	return rpc.NewServer(map[string]*rpc.Target{"echo": t}, rpc.WithLogger(zerolog.Nop()))
}

func testDeps(srv RPCServer) Deps {
	return Deps{
		Logger:          log.WithComponent("test"),
		RPCServer:       srv,
		RPCHosts:        []string{"127.0.0.1"},
		RPCPort:         0,
		ShutdownTimeout: 2 * time.Second,
	}
}

type hookRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *hookRecorder) hook(name string, err error) ShutdownHook {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return err
	}
}

func (r *hookRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Deps{Logger: zerolog.Nop(), RPCServer: newEchoServer()})
	assert.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(Deps{Logger: log.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingRPCServer)

	mgr, err := NewManager(testDeps(newEchoServer()))
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_StartStop_OK(t *testing.T) {
	srv := newEchoServer()
	mgr, err := NewManager(testDeps(srv))
	require.NoError(t, err)

	rec := &hookRecorder{}
	mgr.RegisterShutdownHook("first", rec.hook("first", nil))
	mgr.RegisterShutdownHook("second", rec.hook("second", nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	addr := waitForRPC(t, srv)
	c, err := rpc.Dial(ctx, addr)
	require.NoError(t, err)
	_, err = c.AutoTarget(ctx)
	require.NoError(t, err)
	ret, err := c.Call(ctx, "echo", []any{"hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", ret)
	_ = c.Close()

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
	assert.Equal(t, []string{"second", "first"}, rec.calls())
	assert.ErrorIs(t, mgr.Start(context.Background()), ErrManagerStarted)
}

func TestManager_TerminateStops(t *testing.T) {
	srv := newEchoServer()
	mgr, err := NewManager(testDeps(srv))
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(context.Background()) }()

	addr := waitForRPC(t, srv)
	ctx := context.Background()
	c, err := rpc.Dial(ctx, addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	_, err = c.AutoTarget(ctx)
	require.NoError(t, err)
	// the connection may close before the reply arrives
	_ = c.Terminate(ctx)

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after terminate")
	}
}

func TestManager_WorkerFailure(t *testing.T) {
	deps := testDeps(newEchoServer())
	started := make(chan struct{})
	deps.Workers = []Worker{
		{Name: "idle", Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		}},
		{Name: "broken", Run: func(context.Context) error {
			<-started
			return errors.New("disk on fire")
		}},
	}
	mgr, err := NewManager(deps)
	require.NoError(t, err)
	rec := &hookRecorder{}
	mgr.RegisterShutdownHook("close", rec.hook("close", nil))

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker broken: disk on fire")
	assert.Equal(t, []string{"close"}, rec.calls())
}

func TestManager_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	deps := testDeps(newEchoServer())
	deps.RPCPort = ln.Addr().(*net.TCPAddr).Port
	mgr, err := NewManager(deps)
	require.NoError(t, err)
	rec := &hookRecorder{}
	mgr.RegisterShutdownHook("driver", rec.hook("driver", nil))

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrNoListeners)
	assert.Equal(t, []string{"driver"}, rec.calls(), "resources are released after a failed start")
}

func TestManager_HTTPServer(t *testing.T) {
	deps := testDeps(newEchoServer())
	deps.HTTPListen = reserveListenAddr(t)
	deps.HTTPHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mgr, err := NewManager(deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(deps.HTTPListen, 2*time.Second))
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+deps.HTTPListen+"/", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	srv := newEchoServer()
	mgr, err := NewManager(testDeps(srv))
	require.NoError(t, err)
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	rec := &hookRecorder{}
	mgr.RegisterShutdownHook("a", rec.hook("a", errA))
	mgr.RegisterShutdownHook("b", rec.hook("b", errB))

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForRPC(t, srv)
	cancel()

	select {
	case err = <-errChan:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"b", "a"}, rec.calls())
}
