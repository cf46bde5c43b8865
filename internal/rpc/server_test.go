// SPDX-License-Identifier: MIT

package rpc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
)

type deviceError struct{ msg string }

func (e *deviceError) Error() string          { return e.msg }
func (e *deviceError) ExceptionClass() string { return "WLMException" }

func newEchoTarget() *Target {
	t := NewTarget("Echo test target")
	t.Register(Method{
		Name:   "echo",
		Doc:    "Return the argument.",
		Params: []string{"value"},
		Handler: func(_ context.Context, a Args) (any, error) {
			v, _ := a.Value("value")
			return v, nil
		},
	})
	t.Register(Method{
		Name:     "scale",
		Params:   []string{"x", "factor"},
		Defaults: []any{int64(2)},
		Handler: func(_ context.Context, a Args) (any, error) {
			x, err := a.Float("x")
			if err != nil {
				return nil, err
			}
			f, err := a.Float("factor")
			if err != nil {
				return nil, err
			}
			return x * f, nil
		},
	})
	t.Register(Method{
		Name: "fail",
		Handler: func(context.Context, Args) (any, error) {
			return nil, &deviceError{msg: "ping failed"}
		},
	})
	t.Register(Method{
		Name: "plain_error",
		Handler: func(context.Context, Args) (any, error) {
			return nil, errors.New("boom")
		},
	})
	t.Register(Method{
		Name: "explode",
		Handler: func(context.Context, Args) (any, error) {
			panic("kaboom")
		},
	})
	t.Register(Method{
		Name: "unencodable",
		Handler: func(context.Context, Args) (any, error) {
			return struct{}{}, nil
		},
	})
	t.Register(Method{
		Name: "_private",
		Handler: func(context.Context, Args) (any, error) {
			return "secret", nil
		},
	})
	return t
}

func startServer(t *testing.T, targets map[string]*Target, opts ...Option) (*Server, string) {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	srv := NewServer(targets, opts...)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return after Shutdown")
		}
	})
	return srv, ln.Addr().String()
}

func dialEcho(t *testing.T, opts ...Option) (*Server, *Client) {
	t.Helper()
	srv, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()}, opts...)
	ctx := context.Background()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.AutoTarget(ctx)
	require.NoError(t, err)
	return srv, c
}

func TestHandshake_Raw(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"b": NewTarget(""), "a": newEchoTarget()}, WithDescription("test server"))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("ARTIQ pc_rpc\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"description": "test server", "targets": ["a", "b"]}`+"\n", line)

	_, err = conn.Write([]byte("a\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"echo", "explode", "fail", "plain_error", "scale", "terminate", "unencodable"}`+"\n", line)

	_, err = conn.Write([]byte(`{"action": "call", "name": "echo", "args": [1.5], "kwargs": {}}` + "\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"ret": 1.5, "status": "ok"}`+"\n", line)
}

func TestHandshake_BadInitLineClosesConnection(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("HELLO\n"))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err)
}

func TestHandshake_UnknownTargetClosesConnection(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("ARTIQ pc_rpc\nnope\n"))
	require.NoError(t, err)
	_, err = r.ReadString('\n') // banner
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestClient_Banner(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget(), "other": NewTarget("")})

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Equal(t, []string{"echo", "other"}, c.Targets())
	assert.Empty(t, c.Description())

	_, err = c.AutoTarget(context.Background())
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	err = c.SelectTarget(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = c.Call(context.Background(), "echo", nil, nil)
	assert.ErrorIs(t, err, ErrNoTarget)

	require.NoError(t, c.SelectTarget(context.Background(), "echo"))
	assert.Equal(t, "echo", c.SelectedTarget())
	assert.Contains(t, c.Methods(), "terminate")
	assert.NotContains(t, c.Methods(), "_private")
}

func TestCall_Success(t *testing.T) {
	_, c := dialEcho(t)
	ctx := context.Background()

	ret, err := c.Call(ctx, "echo", []any{"hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", ret)

	ret, err = c.Call(ctx, "echo", nil, map[string]any{"value": pyon.Tuple{int64(1), "x"}})
	require.NoError(t, err)
	assert.Equal(t, pyon.Tuple{int64(1), "x"}, ret)

	ret, err = c.Call(ctx, "scale", []any{int64(3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6.0, ret)

	ret, err = c.Call(ctx, "scale", []any{1.5}, map[string]any{"factor": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, 6.0, ret)
}

func TestCall_Failures(t *testing.T) {
	_, c := dialEcho(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		method    string
		args      []any
		kwargs    map[string]any
		wantClass string
		wantMsg   string
	}{
		{"unknown method", "nope", nil, nil, "AttributeError", "'echo' object has no attribute 'nope'"},
		{"private method", "_private", nil, nil, "AttributeError", "'echo' object has no attribute '_private'"},
		{"too many args", "echo", []any{int64(1), int64(2)}, nil, "TypeError", "echo() takes 2 positional arguments but 3 were given"},
		{"missing arg", "echo", nil, nil, "TypeError", "echo() missing 1 required positional argument: 'value'"},
		{"unexpected kwarg", "echo", nil, map[string]any{"v": int64(1)}, "TypeError", "echo() got an unexpected keyword argument 'v'"},
		{"duplicate arg", "echo", []any{int64(1)}, map[string]any{"value": int64(1)}, "TypeError", "echo() got multiple values for argument 'value'"},
		{"wrong type", "scale", []any{"x"}, nil, "TypeError", "scale(): argument 'x' must be float, not str"},
		{"device error", "fail", nil, nil, "WLMException", "ping failed"},
		{"untyped error", "plain_error", nil, nil, "Exception", "boom"},
		{"panic", "explode", nil, nil, "Exception", "panic in explode: kaboom"},
		{"unencodable return", "unencodable", nil, nil, "TypeError", "pyon: unsupported type: struct {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Call(ctx, tt.method, tt.args, tt.kwargs)
			var re *RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.wantClass, re.Class)
			assert.Equal(t, tt.wantMsg, re.Message)
			assert.NotEmpty(t, re.Traceback)
		})
	}

	// The connection stays usable after failures.
	ret, err := c.Call(ctx, "echo", []any{true}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, ret)
}

func TestCall_PanicTracebackIncludesStack(t *testing.T) {
	_, c := dialEcho(t)

	_, err := c.Call(context.Background(), "explode", nil, nil)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.FormatTraceback(), "goroutine")
	assert.True(t, strings.HasSuffix(re.FormatTraceback(), "Exception: panic in explode: kaboom\n"))
}

func TestMethodList(t *testing.T) {
	_, c := dialEcho(t)

	ml, err := c.MethodList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Echo test target", ml.Docstring)

	echo, ok := ml.Methods["echo"]
	require.True(t, ok)
	assert.Equal(t, []string{"value"}, echo.Args)
	assert.Nil(t, echo.Defaults)
	assert.Equal(t, "Return the argument.", echo.Doc)

	scale := ml.Methods["scale"]
	assert.Equal(t, []string{"x", "factor"}, scale.Args)
	assert.Equal(t, []any{int64(2)}, scale.Defaults)

	_, ok = ml.Methods["_private"]
	assert.False(t, ok)
}

func TestUnknownAction(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("ARTIQ pc_rpc\necho\n{'action': 'dance'}\n"))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = r.ReadString('\n')
		require.NoError(t, err)
	}
	line, err := r.ReadString('\n')
	require.NoError(t, err)

	v, err := pyon.Decode(line)
	require.NoError(t, err)
	_, err = parseReply(v)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ValueError", re.Class)
}

func TestUndecodableRequestClosesConnection(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("ARTIQ pc_rpc\necho\n{{{\n"))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = r.ReadString('\n')
		require.NoError(t, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestTerminate(t *testing.T) {
	srv, c := dialEcho(t)

	select {
	case <-srv.Terminated():
		t.Fatal("terminated before request")
	default:
	}

	require.NoError(t, c.Terminate(context.Background()))

	select {
	case <-srv.Terminated():
	case <-time.After(5 * time.Second):
		t.Fatal("Terminated() not closed")
	}

	// A second terminate is harmless.
	require.NoError(t, c.Terminate(context.Background()))
}

func TestTerminate_Disabled(t *testing.T) {
	_, c := dialEcho(t, WithBuiltinTerminate(false))
	assert.NotContains(t, c.Methods(), "terminate")

	err := c.Terminate(context.Background())
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "AttributeError", re.Class)
}

func TestCallLock_SerializesAcrossConnections(t *testing.T) {
	var running, peak atomic.Int32
	target := NewTarget("")
	target.Register(Method{
		Name: "slow",
		Handler: func(context.Context, Args) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		},
	})
	_, addr := startServer(t, map[string]*Target{"t": target})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Dial(context.Background(), addr)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = c.Close() }()
			if _, err := c.AutoTarget(context.Background()); !assert.NoError(t, err) {
				return
			}
			_, err = c.Call(context.Background(), "slow", nil, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestCall_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	target := NewTarget("")
	target.Register(Method{
		Name: "block",
		Handler: func(context.Context, Args) (any, error) {
			<-release
			return nil, nil
		},
	})
	_, addr := startServer(t, map[string]*Target{"t": target})
	defer close(release)

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	_, err = c.AutoTarget(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "block", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_DeadlineDropsLateReply(t *testing.T) {
	target := NewTarget("")
	target.Register(Method{
		Name: "slow",
		Handler: func(context.Context, Args) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "slow-result", nil
		},
	})
	target.Register(Method{
		Name: "fast",
		Handler: func(context.Context, Args) (any, error) {
			return "fast-result", nil
		},
	})
	_, addr := startServer(t, map[string]*Target{"t": target})

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	_, err = c.AutoTarget(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "slow", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the slow reply must never surface as the result of a later call
	time.Sleep(250 * time.Millisecond)
	ret, err := c.Call(context.Background(), "fast", nil, nil)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Nil(t, ret)
	assert.NoError(t, c.Close())

	fresh, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer func() { _ = fresh.Close() }()
	_, err = fresh.AutoTarget(context.Background())
	require.NoError(t, err)
	ret, err = fresh.Call(context.Background(), "fast", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast-result", ret)
}

func TestClient_CallAfterClose(t *testing.T) {
	_, c := dialEcho(t)
	require.NoError(t, c.Close())

	_, err := c.Call(context.Background(), "echo", []any{int64(1)}, nil)
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.MethodList(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestServe_AfterShutdown(t *testing.T) {
	srv := NewServer(nil, WithLogger(zerolog.Nop()))
	require.NoError(t, srv.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), ErrServerClosed)
}

func TestServe_ContextCancel(t *testing.T) {
	srv := NewServer(map[string]*Target{"echo": newEchoTarget()}, WithLogger(zerolog.Nop()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return len(srv.Addrs()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestListen_PartialFailure(t *testing.T) {
	srv := NewServer(nil, WithLogger(zerolog.Nop()))

	lns, err := srv.Listen(context.Background(), []string{"127.0.0.1", "203.0.113.1"}, 0)
	require.NoError(t, err)
	require.Len(t, lns, 1)
	for _, ln := range lns {
		_ = ln.Close()
	}

	_, err = srv.Listen(context.Background(), []string{"203.0.113.1"}, 0)
	assert.ErrorIs(t, err, ErrNoListeners)
}

func TestListenAndServe(t *testing.T) {
	srv := NewServer(map[string]*Target{"echo": newEchoTarget()}, WithLogger(zerolog.Nop()))

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(context.Background(), []string{"127.0.0.1"}, 0) }()

	require.Eventually(t, func() bool { return len(srv.Addrs()) == 1 }, 5*time.Second, 10*time.Millisecond)

	c, err := Dial(context.Background(), srv.Addrs()[0].String())
	require.NoError(t, err)
	_, err = c.AutoTarget(context.Background())
	require.NoError(t, err)
	ret, err := c.Call(context.Background(), "echo", []any{int64(7)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ret)
	_ = c.Close()

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}

func TestMaxConnections(t *testing.T) {
	_, addr := startServer(t, map[string]*Target{"echo": newEchoTarget()}, WithMaxConnections(1))

	first, err := Dial(context.Background(), addr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	_, err = Dial(ctx, addr)
	cancel()
	require.Error(t, err, "second client must wait while the only slot is taken")

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		c, err := Dial(ctx, addr)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)
}
