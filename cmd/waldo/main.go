package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/waldo-cli/cmd"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// main wires OS signals into the command context so Ctrl-C unwinds
// runs and recordings cleanly instead of killing the browser mid-step.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		// A canceled context is the signal path, not a failure.
		if errors.Is(err, context.Canceled) {
			return
		}
		os.Exit(1)
	}
}
