// Package main provides the entry point for stackctl.
//
// stackctl builds a web frontend and a native backend together and serves the
// result while you edit.
//
// Usage:
//
//	stackctl serve [--open]         Build, run and rebuild on change
//	stackctl build --release        Produce a release distribution
//	stackctl stop                   Stop the serve session of this workspace
//	stackctl version                Show version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/stackctl/internal/logger"
	"github.com/ternarybob/stackctl/internal/ui"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logger.Stop()

	if err != nil {
		ui.NewConsole(os.Stderr, false).Error(err)
		os.Exit(1)
	}
}
