// Package main provides the askvoice CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/askvoice/internal/app"
)

// main maps SIGTERM onto context cancellation. Ctrl+C is handled by ask as a
// stop request, and otherwise keeps its default behaviour.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	exitCode := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
