// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

func newVersionCmd() *cobra.Command {
	var deps bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and, with --deps, the compiled dependency closure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "aqctl_highfinesse %s\n", version.String())
			if !deps {
				return nil
			}
			list, ok := version.Dependencies()
			if !ok {
				return errors.New("binary carries no build information")
			}
			for _, d := range list {
				fmt.Fprintln(cmd.OutOrStdout(), d.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deps, "deps", false, "list module path, version and content hash of every dependency")
	return cmd
}
