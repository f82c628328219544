package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/clawd/cmd/clawd/commands"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// SIGINT is handled per command: start stops on Ctrl+C, launched agents
	// receive it themselves.
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, // Docker/k8s termination, process managers
		syscall.SIGHUP,  // terminal closed
	)
	defer stop()

	err := commands.Execute(ctx, os.Args, version, commit)

	var exitErr *commands.ExitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			slog.ErrorContext(ctx, "Application failed", "error", exitErr.Err)
		}
		stop()
		os.Exit(exitErr.Code)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Application failed", "error", err)
		stop()
		os.Exit(1)
	}
}
