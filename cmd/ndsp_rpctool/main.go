// SPDX-License-Identifier: MIT

// Command ndsp_rpctool inspects and calls pc_rpc controllers from the shell.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := 0
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		code = 1
	}
	stop()
	os.Exit(code)
}
