package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/memory"
)

// NewStatsCmd creates the stats command (factory pattern)
func NewStatsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, runStats)
		},
	}
}

func runStats(ctx context.Context, a *app.App) error {
	stats, err := a.Index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	total := 0
	for _, c := range memory.Collections {
		n := stats[c.String()]
		total += n
		fmt.Fprintf(w, "%s\t%d\n", c, n)
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}
