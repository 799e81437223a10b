// File: cmd/mirad/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/innova-space-edu/mira-agentd/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
