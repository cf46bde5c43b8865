// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

var errHTTPDisabled = errors.New("HTTP side channel is not enabled (set --addr, http.listen or NDSP_HTTP_LISTEN)")

func newHealthcheckCmd(root *rootOptions) *cobra.Command {
	var (
		addr    string
		live    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Query the readiness (or liveness) endpoint of a running controller",
		Long: "Exits 0 when the controller answers 200 on /readyz (or /healthz with --live).\n" +
			"Without --addr the HTTP listen address is taken from the configuration.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := config.NewLoader(root.configPath, version.Version).Load()
				if err != nil {
					return err
				}
				addr = cfg.HTTP.Listen
			}
			if addr == "" {
				return errHTTPDisabled
			}
			path := "/readyz"
			mode := "ready"
			if live {
				path, mode = "/healthz", "live"
			}

			url := "http://" + dialAddr(addr) + path
			client := http.Client{Timeout: timeout}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("healthcheck failed (network): %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Healthcheck successful (%s)\n", mode)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "HTTP address of the controller (host:port)")
	f.BoolVar(&live, "live", false, "check liveness (/healthz) instead of readiness")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "check timeout")
	return cmd
}

// dialAddr maps a listen address with an empty or wildcard host to loopback.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return net.JoinHostPort(host, port)
}
