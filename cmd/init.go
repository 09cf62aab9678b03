package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
)

// NewInitCmd creates the init command (factory pattern)
func NewInitCmd(cfg *config.Config) *cobra.Command {
	var (
		facts   string
		sources []string
	)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Seed identity and project context memory",
		Long: `Init seeds the identity collection from a facts file and the project
context collection from the configured sources. Collections that are
already populated are left untouched, so init is safe to re-run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if facts != "" {
				cfg.IdentityFactsFile = facts
			}
			if len(sources) > 0 {
				cfg.ProjectSources = sources
			}
			// Does not go through withApp: init owns the bootstrap call
			// so it can report what was seeded.
			a, err := app.Setup(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			return runInit(cmd.Context(), a)
		},
	}

	initCmd.Flags().StringVar(&facts, "facts", "", "identity facts JSON file (overrides config)")
	initCmd.Flags().StringSliceVar(&sources, "project", nil, "project context files or directories (overrides config)")

	return initCmd
}

func runInit(ctx context.Context, a *app.App) error {
	res, err := a.Bootstrapper.EnsureInitialized(ctx)
	if err != nil {
		return fmt.Errorf("initializing memory: %w", err)
	}

	if res.AlreadyDone {
		fmt.Println("Memory already initialized")
		return nil
	}

	fmt.Printf("Identity facts seeded: %d\n", res.IdentityFacts)
	fmt.Printf("Project files ingested: %d (%d chunks)\n", res.ProjectFiles, res.ProjectChunks)
	return nil
}
