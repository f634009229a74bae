package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context that is cancelled when the
// process receives SIGINT or SIGTERM. The run command uses it as the
// root context, so a shutdown signal cancels the retention scheduler,
// the plan watcher, and the HTTP server together and in-flight
// requests get drained before the process exits.
func SetupSignalHandler() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
