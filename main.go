// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soundreactive/cmd"
	applog "soundreactive/internal/log"
	"soundreactive/pkg/build"
)

// main is the entry point for the sound-reactive pipeline.
//
// 1. Startup: build information, command line, configuration.
// 2. Run: the selected command until it finishes or a signal arrives.
// 3. Shutdown: the command closes its own sources, taps and transports.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Fatalf("Build information: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, opts, os.Stdout); err != nil {
		stop()
		applog.Fatalf("%v", err)
	}
}
