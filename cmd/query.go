package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/memory"
)

// NewQueryCmd creates the query command (factory pattern)
func NewQueryCmd(cfg *config.Config) *cobra.Command {
	var (
		collection string
		topK       int
		where      []string
	)

	queryCmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Semantic search over one collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := memory.ParseCollection(collection)
			if err != nil {
				return err
			}
			filter, err := parseWhere(where)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runQuery(ctx, a, c, text, topK, filter)
			})
		},
	}

	queryCmd.Flags().StringVarP(&collection, "collection", "c", memory.CollectionProjectContext.String(), "collection to search")
	queryCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (defaults to the configured top_k)")
	queryCmd.Flags().StringArrayVar(&where, "where", nil, "metadata filter as key=value, repeatable")

	return queryCmd
}

func runQuery(ctx context.Context, a *app.App, c memory.Collection, text string, topK int, filter map[string]string) error {
	if topK <= 0 {
		topK = a.Config.TopK
	}

	results, err := a.Index.Query(ctx, c, text, topK, filter)
	if err != nil {
		return fmt.Errorf("querying %s: %w", c, err)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}

	fmt.Print(formatResults(results))
	return nil
}

// formatResults renders ranked results, one numbered entry per record.
func formatResults(results []memory.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%.4f] %s\n", i+1, r.Score, r.Record.ID)
		fmt.Fprintf(&b, "   %s\n", oneLine(r.Record.Text, 160))
	}
	return b.String()
}

// parseWhere converts repeated key=value flags into a metadata filter.
func parseWhere(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --where %q, expected key=value", p)
		}
		filter[k] = v
	}
	return filter, nil
}

// oneLine collapses whitespace and truncates for terminal display.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
