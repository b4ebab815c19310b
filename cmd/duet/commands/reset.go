// ABOUTME: Reset command forgets one conversation entirely
// ABOUTME: Removes relationship, history, facts, memories, and vectors
package commands

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewResetCmd creates the reset command
func NewResetCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset <conversation>",
		Short: "Forget a conversation",
		Long: `Delete every trace of a conversation: feelings, history, facts,
episodic memories, and their vectors.

This cannot be undone. Run with --confirm to proceed.`,
		Example: `  duet reset cli --confirm`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !confirm {
				fmt.Fprintf(w, "This will delete everything about %q!\n", args[0])
				fmt.Fprintln(w, "Run with --confirm to proceed")
				return nil
			}

			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, _ *config.Config, _ *zap.Logger) error {
				stats, err := repo.ResetConversation(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
				if wantJSON() {
					return printJSON(w, map[string]interface{}{
						"conversation_id": args[0],
						"relationships":   stats.Relationships,
						"facts":           stats.Facts,
						"memories":        stats.Memories,
						"vectors":         stats.Vectors,
					})
				}
				fmt.Fprintf(w, "Forgot %q: %d facts, %d memories, %d vectors\n",
					args[0], stats.Facts, stats.Memories, stats.Vectors)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the reset")

	return cmd
}
