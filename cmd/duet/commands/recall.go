// ABOUTME: Recall command runs a semantic search over indexed memories
// ABOUTME: Embeds the query and ranks vectors by cosine similarity
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	recallConversation string
	recallLimit        int
)

// newEmbedder is swapped in tests
var newEmbedder = func(cfg *config.Config) (llm.Embedder, error) {
	client, err := app.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewRecallCmd creates the recall command
func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memories by meaning",
		Long: `Search vector-indexed memories by semantic similarity.

Only memories important enough to be indexed are searched. Requires
OPENAI_API_KEY for query embeddings.`,
		Example: `  duet recall "the time I talked about my dog"
  duet recall --conversation cli "job interview" -n 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(recallLimit, "limit"); err != nil {
				return err
			}
			query := strings.Join(args, " ")

			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, cfg *config.Config, logger *zap.Logger) error {
				embedder, err := newEmbedder(cfg)
				if err != nil {
					return err
				}
				bridge := core.NewVectorBridge(embedder, repo, core.WithLogger(logger))

				results, err := bridge.Search(ctx, query, recallConversation, recallLimit)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}

				w := cmd.OutOrStdout()
				if wantJSON() {
					if results == nil {
						results = []models.VectorSearchResult{}
					}
					return printJSON(w, results)
				}
				if len(results) == 0 {
					fmt.Fprintln(w, "Nothing comes to mind")
					return nil
				}
				for i, r := range results {
					fmt.Fprintf(w, "%d. [%.2f] %s\n", i+1, r.SimilarityScore, r.Text)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&recallConversation, "conversation", "c", "", "Only this conversation")
	cmd.Flags().IntVarP(&recallLimit, "limit", "n", 5, "Maximum number of results")

	return cmd
}
