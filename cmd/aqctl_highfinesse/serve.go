// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/daemon"
	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()

	loader := config.NewLoader(opts.configPath, version.Version, opts.overrides(cmd)...)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	resolveLevel := func(configured string) (string, error) {
		return log.ResolveLevel(configured, opts.verbose, opts.quiet)
	}
	level, err := resolveLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.Configure(log.Config{
		Level:   level,
		Output:  cmd.ErrOrStderr(),
		Service: daemon.ServiceName,
		Version: version.Version,
	})
	logger := log.WithComponent("main")
	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("config", loader.Path()).
		Bool("simulation", cfg.Device.Simulation).
		Msg("starting aqctl_highfinesse")

	rt, err := daemon.Bootstrap(ctx, cfg, daemon.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return fmt.Errorf("startup: %w", err)
	}

	var mon daemon.MonitorUpdater
	if rt.Monitor != nil {
		mon = rt.Monitor
	}
	app := daemon.NewApp(logger, rt.Manager, config.NewConfigHolder(cfg, loader), mon, resolveLevel)
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("controller stopped with error")
		return err
	}
	return nil
}
