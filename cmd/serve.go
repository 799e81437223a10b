// File: cmd/serve.go
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/agent"
	"github.com/innova-space-edu/mira-agentd/internal/browser"
	"github.com/innova-space-edu/mira-agentd/internal/observability"
	"github.com/innova-space-edu/mira-agentd/internal/server"
	"github.com/innova-space-edu/mira-agentd/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent HTTP server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the components and serves until the context is cancelled.
func runServe(ctx context.Context) error {
	cfg := appConfig
	logger := observability.GetLogger()

	registry := session.NewRegistry(cfg.Agent.MaxTurns, logger)
	executor := agent.NewExecutor(logger)
	client := agent.NewOpenAIModelClient(cfg.Model, logger)
	loop := agent.NewLoop(registry, client, executor, cfg.Agent.MaxIterations, logger)
	manager := browser.NewManager(cfg.Browser, logger)

	sweepCtx, stopSweepers := context.WithCancel(ctx)
	defer stopSweepers()
	go registry.RunSweeper(sweepCtx, cfg.Session.SweepInterval, cfg.Session.TTL)
	go manager.RunSweeper(sweepCtx, cfg.Session.SweepInterval, cfg.Session.TTL)

	srv := server.New(cfg.Server, loop, manager, logger)
	err := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)

	if err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped.")
	return nil
}
