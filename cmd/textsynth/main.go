// Package main is the entry point for the textsynth command line client.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/elikoga/textsynth/internal/cli"
	"github.com/elikoga/textsynth/pkg/textsynth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		attrs := []any{"error", err}
		if t := textsynth.ErrorTypeOf(err); t != "" {
			attrs = append(attrs, "type", t)
		}
		if e, ok := textsynth.AsError(err); ok && e.StatusCode != 0 {
			attrs = append(attrs, "status", e.StatusCode)
		}
		slog.Error("command failed", attrs...)
		stop()
		os.Exit(1)
	}
}
