// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aqctl_highfinesse "+version.Version)
}

func TestVersionCmd_Deps(t *testing.T) {
	out, err := execute(t, context.Background(), "version", "--deps")
	require.NoError(t, err)
	assert.Contains(t, out, "github.com/spf13/cobra")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.yaml")

	out, err := execute(t, context.Background(), "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, context.Background(), "config", "init", path)
	assert.ErrorIs(t, err, config.ErrConfigExists)

	_, err = execute(t, context.Background(), "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, context.Background(), "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, path+" is valid")
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc:\n  port: 70000\n"), 0o600))

	_, err := execute(t, context.Background(), "--config", path, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc.port")
}

func TestHealthcheck(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/readyz" && ready:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	addr := srv.Listener.Addr().String()

	out, err := execute(t, context.Background(), "healthcheck", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "Healthcheck successful (ready)")

	ready = false
	_, err = execute(t, context.Background(), "healthcheck", "--addr", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	out, err = execute(t, context.Background(), "healthcheck", "--addr", addr, "--live")
	require.NoError(t, err)
	assert.Contains(t, out, "(live)")
}

func TestHealthcheck_UsesConfig(t *testing.T) {
	_, err := execute(t, context.Background(), "healthcheck")
	assert.ErrorIs(t, err, errHTTPDisabled)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	t.Setenv("NDSP_HTTP_LISTEN", ":"+port)
	_, err = execute(t, context.Background(), "healthcheck")
	require.NoError(t, err)
}

func TestDialAddr(t *testing.T) {
	tests := map[string]string{
		":8080":         "127.0.0.1:8080",
		"0.0.0.0:8080":  "127.0.0.1:8080",
		"[::]:8080":     "[::1]:8080",
		"10.0.0.5:8080": "10.0.0.5:8080",
		"garbage":       "garbage",
	}
	for in, want := range tests {
		assert.Equal(t, want, dialAddr(in), in)
	}
}

func TestOverrides_OnlyChangedFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--bind", "10.0.0.1", "--bind", "10.0.0.2", "--simulation"}))

	t.Setenv("NDSP_RPC_PORT", "4000")
	opts := &rootOptions{}
	// flag storage is private to newRootCmd
	opts.bind, _ = cmd.Flags().GetStringArray("bind")
	opts.simulation, _ = cmd.Flags().GetBool("simulation")

	cfg, err := config.NewLoader("", "", opts.overrides(cmd)...).Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.RPC.Port, "an unset --port keeps the environment value")
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RPC.Bind)
	assert.True(t, cfg.Device.Simulation)
	assert.False(t, cfg.RPC.NoLocalhostBind)
}

func TestServe_Simulation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "--simulation", "-p", strconv.Itoa(port),
			"--bind", "127.0.0.1", "--no-localhost-bind", "-v")
		done <- err
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var client *rpc.Client
	require.Eventually(t, func() bool {
		client, err = rpc.Dial(ctx, addr)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer func() { _ = client.Close() }()

	assert.Equal(t, []string{"HighFinesse"}, client.Targets())
	_, err = client.AutoTarget(ctx)
	require.NoError(t, err)
	id, err := client.Call(ctx, "id", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "WLM simulator", id)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
