// ABOUTME: State command shows how each persona feels about a conversation
// ABOUTME: Prints raw values, effective affection, and behaviour brackets
package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStateCmd creates the state command
func NewStateCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "state [conversation]",
		Short: "Show the personas' feelings",
		Long: `Show affection, trust, and mood for both personas.

Pass --all to list every known conversation, most recently active first.`,
		Example: `  duet state cli
  duet state --all
  duet state cli --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("a conversation ID is required (or use --all)")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, _ *config.Config, _ *zap.Logger) error {
				w := cmd.OutOrStdout()
				if all {
					return printAllStates(w, repo.ListRelationships(ctx))
				}

				state := repo.GetRelationship(ctx, args[0])
				if state == nil {
					if wantJSON() {
						return printJSON(w, map[string]interface{}{"conversation_id": args[0], "state": nil})
					}
					fmt.Fprintf(w, "No relationship yet for %q\n", args[0])
					return nil
				}
				snap := core.NewSnapshot(state)
				if wantJSON() {
					return printJSON(w, snap)
				}
				printSnapshot(w, snap)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every conversation")

	return cmd
}

func printSnapshot(w io.Writer, snap *core.EmotionSnapshot) {
	fmt.Fprintf(w, "Conversation: %s\n", snap.State.ConversationID)
	if !snap.State.LastUserActivity.IsZero() {
		fmt.Fprintf(w, "Last activity: %s\n", formatTime(snap.State.LastUserActivity, time.Now()))
	}
	for _, p := range models.Personas {
		e := snap.State.For(p)
		r := snap.Rules[p]
		fmt.Fprintf(w, "\n%s\n", speakerLabel(p))
		fmt.Fprintf(w, "  Affection: %d (effective %d) %s\n", e.Affection, r.EffectiveAffection, r.Affection)
		fmt.Fprintf(w, "  Trust:     %d %s\n", e.Trust, r.Trust)
		fmt.Fprintf(w, "  Mood:      %d %s\n", e.Mood, r.Mood)
	}
}

func printAllStates(w io.Writer, states []models.RelationshipState) error {
	if wantJSON() {
		if states == nil {
			states = []models.RelationshipState{}
		}
		return printJSON(w, states)
	}
	if len(states) == 0 {
		fmt.Fprintln(w, "No conversations yet")
		return nil
	}
	now := time.Now()
	for _, s := range states {
		fmt.Fprintf(w, "%-24s demon %3d  angel %3d  %s\n",
			truncate(s.ConversationID, 24),
			s.Demon.EffectiveAffection(),
			s.Angel.EffectiveAffection(),
			formatTime(s.LastUserActivity, now))
	}
	return nil
}
