// ABOUTME: Export command dumps conversations to YAML or Markdown
// ABOUTME: Writes to stdout or to a file given with --output
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportAs     string
	exportOutput string
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [conversation]",
		Short: "Export relationships, history, facts, and memories",
		Long: `Export everything duet knows about one conversation, or about all of
them when no conversation is given.`,
		Example: `  duet export > duet.yaml
  duet export cli --as markdown --output ./cli.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var write func(w io.Writer, data *sqlite.ExportData) error
			switch exportAs {
			case sqlite.FormatYAML:
				write = sqlite.WriteYAML
			case sqlite.FormatMarkdown, "md":
				exportAs = sqlite.FormatMarkdown
				write = sqlite.WriteMarkdown
			default:
				return fmt.Errorf("--as must be yaml or markdown, got %q", exportAs)
			}

			conversationID := ""
			if len(args) == 1 {
				conversationID = args[0]
			}

			return withRepo(cmd.Context(), func(ctx context.Context, repo *sqlite.Repository, _ *config.Config, logger *zap.Logger) error {
				if exportOutput != "" {
					if err := repo.ExportToFile(ctx, exportOutput, exportAs, conversationID); err != nil {
						return fmt.Errorf("export failed: %w", err)
					}
					logger.Info("export written", zap.String("path", exportOutput), zap.String("format", exportAs))
					if !quiet {
						fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", exportOutput)
					}
					return nil
				}

				data, err := repo.Export(ctx, conversationID)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				if wantJSON() {
					return printJSON(cmd.OutOrStdout(), data)
				}
				return write(cmd.OutOrStdout(), data)
			})
		},
	}

	cmd.Flags().StringVar(&exportAs, "as", sqlite.FormatYAML, "Export format: yaml or markdown")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}
