package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wardenhq/warden/cmd/warden/cli"
)

func main() {
	// SIGINT/SIGTERM cancel the context; the session observes it, stops
	// the agent, and finalizes before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
