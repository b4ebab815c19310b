// ABOUTME: Facts command lists what the personas remember about a conversation
// ABOUTME: Optional query narrows the list by key or detail
package commands

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	factsQuery string
	factsLimit int
)

// NewFactsCmd creates the facts command
func NewFactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts <conversation>",
		Short: "List remembered facts",
		Long: `List the facts the personas have recorded for a conversation.

Each fact is tagged with the persona that learned it.`,
		Example: `  duet facts cli
  duet facts cli --query dog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(factsLimit, "limit"); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, _ *config.Config, _ *zap.Logger) error {
				var facts []models.Fact
				if factsQuery != "" {
					facts = repo.SearchFacts(ctx, args[0], factsQuery, factsLimit)
				} else {
					facts = repo.GetFacts(ctx, args[0])
					if len(facts) > factsLimit {
						facts = facts[:factsLimit]
					}
				}

				w := cmd.OutOrStdout()
				if wantJSON() {
					if facts == nil {
						facts = []models.Fact{}
					}
					return printJSON(w, facts)
				}
				if len(facts) == 0 {
					fmt.Fprintln(w, "No facts remembered yet")
					return nil
				}
				fmt.Fprint(w, core.FormatFacts(facts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&factsQuery, "query", "", "Only facts matching this text")
	cmd.Flags().IntVarP(&factsLimit, "limit", "n", 50, "Maximum number of facts")

	return cmd
}
