// SPDX-License-Identifier: MIT

package main

import (
	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
)

// rootOptions holds the serve flags.
type rootOptions struct {
	configPath      string
	port            int
	bind            []string
	noLocalhostBind bool
	simulation      bool
	httpListen      string
	verbose         int
	quiet           int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "aqctl_highfinesse",
		Short: "HighFinesse wavemeter controller",
		Long: "Serves a HighFinesse wavemeter as the \"HighFinesse\" pc_rpc target.\n\n" +
			"Settings are read from defaults, the --config YAML file, NDSP_* environment\n" +
			"variables and flags, in increasing order of precedence.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file")

	f := cmd.Flags()
	f.IntVarP(&opts.port, "port", "p", defaults.RPC.Port, "TCP port to listen on")
	f.StringArrayVar(&opts.bind, "bind", nil,
		"additional hostname or IP address to bind to; use '*' to bind to all interfaces (repeatable)")
	f.BoolVar(&opts.noLocalhostBind, "no-localhost-bind", false, "do not implicitly also bind to localhost addresses")
	f.BoolVar(&opts.simulation, "simulation", false, "put the driver in simulation mode")
	f.StringVar(&opts.httpListen, "http", "", "listen address of the HTTP side channel, e.g. 127.0.0.1:8080")
	f.CountVarP(&opts.verbose, "verbose", "v", "increase logging level")
	f.CountVarP(&opts.quiet, "quiet", "q", "decrease logging level")

	cmd.AddCommand(newVersionCmd(), newHealthcheckCmd(opts), newConfigCmd(opts))
	return cmd
}

// overrides turns the flags the user set into config overrides.
func (o *rootOptions) overrides(cmd *cobra.Command) []config.Override {
	var out []config.Override
	f := cmd.Flags()
	if f.Changed("port") {
		port := o.port
		out = append(out, func(c *config.AppConfig) { c.RPC.Port = port })
	}
	if f.Changed("bind") {
		bind := append([]string(nil), o.bind...)
		out = append(out, func(c *config.AppConfig) { c.RPC.Bind = bind })
	}
	if f.Changed("no-localhost-bind") {
		v := o.noLocalhostBind
		out = append(out, func(c *config.AppConfig) { c.RPC.NoLocalhostBind = v })
	}
	if f.Changed("simulation") {
		v := o.simulation
		out = append(out, func(c *config.AppConfig) { c.Device.Simulation = v })
	}
	if f.Changed("http") {
		v := o.httpListen
		out = append(out, func(c *config.AppConfig) { c.HTTP.Listen = v })
	}
	return out
}
