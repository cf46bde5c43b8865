// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
	"github.com/jbqubit/ndsp-highfinesse/internal/rpc"
	"github.com/jbqubit/ndsp-highfinesse/internal/version"
)

type options struct {
	target  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "ndsp_rpctool <host> <port> <action> [args...]",
		Short: "Inspect and call pc_rpc controllers",
		Long: "Actions:\n" +
			"  list-targets              print the targets and description of the server\n" +
			"  list-methods              print the methods of the selected target\n" +
			"  call <method> [args...]   call a method; each argument is parsed as a value\n" +
			"                            literal and passed as a string when that fails\n" +
			"  terminate                 ask the controller to exit",
		Version:      version.Version,
		Args:         cobra.MinimumNArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.target, "target", "t", "", "target name (required when the server exposes more than one)")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for connecting and for each request")
	return cmd
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	addr := net.JoinHostPort(args[0], args[1])
	action, rest := args[2], args[3:]

	switch action {
	case "list-targets", "list-methods", "terminate":
		if len(rest) != 0 {
			return fmt.Errorf("%s takes no arguments", action)
		}
	case "call":
		if len(rest) == 0 {
			return fmt.Errorf("call requires a method name")
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	client, err := rpc.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	out := cmd.OutOrStdout()
	if action == "list-targets" {
		fmt.Fprintln(out, "Target(s):   "+strings.Join(client.Targets(), ", "))
		if d := client.Description(); d != "" {
			fmt.Fprintln(out, "Description: "+d)
		}
		return nil
	}

	if opts.target != "" {
		err = client.SelectTarget(ctx, opts.target)
	} else {
		_, err = client.AutoTarget(ctx)
	}
	if err != nil {
		return err
	}

	switch action {
	case "list-methods":
		return listMethods(ctx, cmd, client)
	case "terminate":
		return client.Terminate(ctx)
	}

	callArgs := make([]any, 0, len(rest)-1)
	for _, raw := range rest[1:] {
		callArgs = append(callArgs, parseArg(raw))
	}
	ret, err := client.Call(ctx, rest[0], callArgs, nil)
	if err != nil {
		return err
	}
	text, err := pyon.Encode(ret)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}

func listMethods(ctx context.Context, cmd *cobra.Command, client *rpc.Client) error {
	list, err := client.MethodList(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if list.Docstring != "" {
		fmt.Fprintln(out, list.Docstring)
		fmt.Fprintln(out)
	}
	names := make([]string, 0, len(list.Methods))
	for name := range list.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info := list.Methods[name]
		fmt.Fprintf(out, "%s(%s)\n", name, signature(info))
		if info.Doc != "" {
			for _, line := range strings.Split(strings.TrimSpace(info.Doc), "\n") {
				fmt.Fprintln(out, "    "+strings.TrimSpace(line))
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

// signature renders parameters with their defaults, e.g. "channel, n=1".
func signature(info rpc.MethodInfo) string {
	first := len(info.Args) - len(info.Defaults)
	parts := make([]string, len(info.Args))
	for i, name := range info.Args {
		parts[i] = name
		if first >= 0 && i >= first {
			def, err := pyon.Encode(info.Defaults[i-first])
			if err != nil {
				def = "?"
			}
			parts[i] += "=" + def
		}
	}
	return strings.Join(parts, ", ")
}

// parseArg decodes a value literal, falling back to the raw string.
func parseArg(raw string) any {
	v, err := pyon.Decode(raw)
	if err != nil {
		return raw
	}
	return v
}
