package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/app"
	"github.com/exocortex/exocortex/internal/config"
)

// NewLogCmd creates the log command (factory pattern)
func NewLogCmd(cfg *config.Config) *cobra.Command {
	var (
		user      string
		assistant string
		session   string
	)

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Record a conversation turn",
		Long: `Log stores one user/assistant exchange in the conversations
collection so later queries can recall it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				return runLog(ctx, a, user, assistant, session)
			})
		},
	}

	logCmd.Flags().StringVarP(&user, "user", "u", "", "the user message")
	logCmd.Flags().StringVarP(&assistant, "assistant", "a", "", "the assistant reply")
	logCmd.Flags().StringVarP(&session, "session", "s", "", "optional session id")

	return logCmd
}

func runLog(ctx context.Context, a *app.App, user, assistant, session string) error {
	id, err := a.Conversations.SaveTurn(ctx, user, assistant, session)
	if err != nil {
		return fmt.Errorf("saving turn: %w", err)
	}
	fmt.Printf("Saved turn %s\n", id)
	return nil
}
