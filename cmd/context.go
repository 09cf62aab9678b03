package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
)

// NewContextCmd creates the context command (factory pattern)
func NewContextCmd(cfg *config.Config) *cobra.Command {
	var (
		budget int
		scope  string
	)

	contextCmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble a token-budgeted context block",
		Long: `Context runs the query against memory and packs the best matches into
a single block, identity first, then project context, then past
conversations, stopping when the token budget is reached.

Scopes:
  full           all three collections (default)
  relevant       identity and project context only
  conversations  past conversations only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runContext(ctx, a, query, scope, budget)
			})
		},
	}

	contextCmd.Flags().IntVarP(&budget, "budget", "b", 0, "token budget (defaults to the configured context_budget)")
	contextCmd.Flags().StringVar(&scope, "scope", "full", "full, relevant, or conversations")

	return contextCmd
}

func runContext(ctx context.Context, a *app.App, query, scope string, budget int) error {
	if budget <= 0 {
		budget = a.Config.ContextBudget
	}

	var (
		block string
		err   error
	)
	switch scope {
	case "full":
		block, err = a.Assembler.FullContext(ctx, query, budget)
	case "relevant":
		block, err = a.Assembler.RelevantContext(ctx, query, budget)
	case "conversations":
		block, err = a.Assembler.ConversationContext(ctx, query, budget)
	default:
		return fmt.Errorf("unknown scope %q, expected full, relevant, or conversations", scope)
	}
	if err != nil {
		return fmt.Errorf("assembling context: %w", err)
	}

	if block == "" {
		fmt.Println("No context available")
		return nil
	}
	fmt.Println(block)
	return nil
}
