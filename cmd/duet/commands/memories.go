// ABOUTME: Memories command lists episodic memories
// ABOUTME: Filters by conversation, type, and importance; prints a table or JSON
package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	memoriesConversation  string
	memoriesType          string
	memoriesLimit         int
	memoriesMinImportance float64
	memoriesUnreflected   bool
)

var memoryTypes = []models.MemoryType{
	models.MemoryToolUse,
	models.MemoryExperience,
	models.MemoryConversation,
	models.MemoryReflection,
}

// NewMemoriesCmd creates the memories command
func NewMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List episodic memories",
		Long: `List episodic memories, newest first.

Types: tool_use, experience, conversation, reflection.`,
		Example: `  duet memories
  duet memories --conversation cli --type experience
  duet memories --min-importance 0.8 --unreflected`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(memoriesLimit, "limit"); err != nil {
				return err
			}
			if memoriesType != "" && !knownMemoryType(models.MemoryType(memoriesType)) {
				return fmt.Errorf("unknown memory type %q", memoriesType)
			}

			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, _ *config.Config, _ *zap.Logger) error {
				memories := repo.GetMemories(ctx, models.MemoryFilter{
					ConversationID:    memoriesConversation,
					Type:              models.MemoryType(memoriesType),
					MinImportance:     memoriesMinImportance,
					WithoutReflection: memoriesUnreflected,
					Limit:             memoriesLimit,
				})

				if wantJSON() {
					if memories == nil {
						memories = []models.EpisodicMemory{}
					}
					return printJSON(cmd.OutOrStdout(), memories)
				}
				if len(memories) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No memories found")
					return nil
				}

				now := time.Now()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tIMPORTANCE\tCREATED\tACTION")
				for _, m := range memories {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
						truncate(m.ID, 8),
						m.Type,
						m.Importance,
						formatTime(m.CreatedAt, now),
						truncate(m.Action, 60))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&memoriesConversation, "conversation", "c", "", "Only this conversation")
	cmd.Flags().StringVarP(&memoriesType, "type", "t", "", "Only this memory type")
	cmd.Flags().IntVarP(&memoriesLimit, "limit", "n", 20, "Maximum number of memories")
	cmd.Flags().Float64Var(&memoriesMinImportance, "min-importance", 0, "Minimum importance score")
	cmd.Flags().BoolVar(&memoriesUnreflected, "unreflected", false, "Only memories without a reflection")

	return cmd
}

func knownMemoryType(t models.MemoryType) bool {
	for _, known := range memoryTypes {
		if t == known {
			return true
		}
	}
	return false
}
