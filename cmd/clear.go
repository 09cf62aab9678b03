package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/memory"
)

// NewClearCmd creates the clear command (factory pattern)
func NewClearCmd(cfg *config.Config) *cobra.Command {
	var yes bool

	clearCmd := &cobra.Command{
		Use:   "clear <collection>",
		Short: "Delete every record in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := memory.ParseCollection(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to clear %q without --yes", c)
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runClear(ctx, a, c)
			})
		},
	}

	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")

	return clearCmd
}

func runClear(ctx context.Context, a *app.App, c memory.Collection) error {
	if err := a.Index.Clear(ctx, c); err != nil {
		return fmt.Errorf("clearing %s: %w", c, err)
	}
	fmt.Printf("Cleared %s\n", c)
	return nil
}
