// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/config"
	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

const defaultConfigFile = "aqctl_highfinesse.yaml"

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Long: "Writes the built-in defaults as YAML to path, --config or " + defaultConfigFile + ".\n" +
			"An existing file is kept unless --force is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			switch {
			case len(args) == 1:
				path = args[0]
			case root.configPath != "":
				path = root.configPath
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := config.NewLoader(root.configPath, version.Version)
			if _, err := loader.Load(); err != nil {
				return err
			}
			if loader.Path() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "defaults and environment are valid")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", loader.Path())
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
