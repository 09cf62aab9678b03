package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
)

// NewRecentCmd creates the recent command (factory pattern)
func NewRecentCmd(cfg *config.Config) *cobra.Command {
	var (
		limit   int
		session string
	)

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent conversation turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runRecent(ctx, a, limit, session)
			})
		},
	}

	recentCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of turns to show")
	recentCmd.Flags().StringVarP(&session, "session", "s", "", "restrict to one session id")

	return recentCmd
}

func runRecent(ctx context.Context, a *app.App, limit int, session string) error {
	turns, err := a.Conversations.Recent(ctx, limit, session)
	if err != nil {
		return fmt.Errorf("listing turns: %w", err)
	}

	if len(turns) == 0 {
		fmt.Println("No conversation turns recorded")
		return nil
	}

	for _, t := range turns {
		fmt.Printf("--- %s", t.Timestamp.Local().Format(time.DateTime))
		if t.SessionID != "" {
			fmt.Printf(" (session %s)", t.SessionID)
		}
		fmt.Println()
		fmt.Printf("User: %s\n", t.User)
		fmt.Printf("Assistant: %s\n", t.Assistant)
	}
	return nil
}
