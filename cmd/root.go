// Package cmd provides CLI commands for Exocortex.
//
// Commands:
//   - init: seed the identity and project context collections
//   - ingest: chunk and index files or directories
//   - query: semantic search over one collection
//   - context: assemble a token-budgeted context block
//   - log, recent: record and list conversation turns
//   - stats, clear: collection maintenance
//
// Every command builds the application container on demand, so cheap
// commands like version never touch the embedding provider.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/log"
)

// Execute is the main entry point for the Exocortex CLI application.
func Execute() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return NewRootCmd(cfg).ExecuteContext(ctx)
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "exocortex",
		Short: "Persistent semantic memory and context assembly",
		Long: `Exocortex maintains a persistent semantic memory split into three
collections (identity, project_context, conversations), and assembles
priority-ordered, token-budgeted context blocks from it.

Run "exocortex init" once to seed memory, then query, ingest, and log
conversation turns against it.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		NewInitCmd(cfg),
		NewIngestCmd(cfg),
		NewQueryCmd(cfg),
		NewContextCmd(cfg),
		NewLogCmd(cfg),
		NewRecentCmd(cfg),
		NewStatsCmd(cfg),
		NewClearCmd(cfg),
		NewVersionCmd(cfg),
	)

	return rootCmd
}

// withApp builds the application container, runs the bootstrap gate, and
// releases the container when fn returns. A failed bootstrap degrades to
// a warning so reads keep working when a seed source is broken.
func withApp(ctx context.Context, cfg *config.Config, fn func(context.Context, *app.App) error) error {
	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Bootstrapper.EnsureInitialized(ctx); err != nil {
		a.Logger.Warn("memory bootstrap incomplete", "error", err)
	}
	return fn(ctx, a)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
