// SPDX-License-Identifier: MIT

// Command aqctl_highfinesse is the network controller for HighFinesse
// wavemeters. It serves the "HighFinesse" target over pc_rpc.
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
