// ABOUTME: Export functionality for conversation data
// ABOUTME: Supports YAML and Markdown export formats
package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/duet/internal/models"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version       string               `yaml:"version" json:"version"`
	ExportedAt    string               `yaml:"exported_at" json:"exported_at"`
	Tool          string               `yaml:"tool" json:"tool"`
	Conversations []ExportConversation `yaml:"conversations" json:"conversations"`
}

// ExportConversation holds every tier of one conversation
type ExportConversation struct {
	ConversationID string                    `yaml:"conversation_id" json:"conversation_id"`
	Relationship   *models.RelationshipState `yaml:"relationship,omitempty" json:"relationship,omitempty"`
	History        []models.HistoryEntry     `yaml:"history,omitempty" json:"history,omitempty"`
	Facts          []models.Fact             `yaml:"facts,omitempty" json:"facts,omitempty"`
	Memories       []models.EpisodicMemory   `yaml:"memories,omitempty" json:"memories,omitempty"`
}

// Export collects data for one conversation, or all known conversations when
// conversationID is empty
func (r *Repository) Export(ctx context.Context, conversationID string) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: r.now().Format(time.RFC3339),
		Tool:       "duet",
	}

	var ids []string
	if conversationID != "" {
		ids = []string{conversationID}
	} else {
		states, err := r.relationships.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		for _, s := range states {
			ids = append(ids, s.ConversationID)
		}
	}

	for _, id := range ids {
		rel, err := r.relationships.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get relationship: %w", err)
		}
		facts, err := r.facts.List(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get facts: %w", err)
		}
		memories, err := r.memories.List(ctx, models.MemoryFilter{ConversationID: id})
		if err != nil {
			return nil, fmt.Errorf("failed to get memories: %w", err)
		}

		data.Conversations = append(data.Conversations, ExportConversation{
			ConversationID: id,
			Relationship:   rel,
			History:        r.GetHistory(ctx, id),
			Facts:          facts,
			Memories:       memories,
		})
	}

	return data, nil
}

// WriteYAML encodes data as YAML
func WriteYAML(w io.Writer, data *ExportData) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteMarkdown renders data as a Markdown document
func WriteMarkdown(w io.Writer, data *ExportData) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Duet Export\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", data.ExportedAt)

	for _, conv := range data.Conversations {
		fmt.Fprintf(&b, "## Conversation %s\n\n", conv.ConversationID)

		if rel := conv.Relationship; rel != nil {
			b.WriteString("### Relationship\n\n")
			b.WriteString("| Persona | Affection | Trust | Mood |\n")
			b.WriteString("|---------|-----------|-------|------|\n")
			for _, p := range models.Personas {
				e := rel.For(p)
				fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", p, e.Affection, e.Trust, e.Mood)
			}
			if !rel.LastUserActivity.IsZero() {
				fmt.Fprintf(&b, "\n*Last user activity: %s*\n", rel.LastUserActivity.Format(time.RFC3339))
			}
			b.WriteString("\n")
		}

		if len(conv.Facts) > 0 {
			b.WriteString("### Facts\n\n")
			b.WriteString("| Key | Detail | Scope |\n")
			b.WriteString("|-----|--------|-------|\n")
			for _, f := range conv.Facts {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Key, escapeCell(f.Detail), f.Scope)
			}
			b.WriteString("\n")
		}

		if len(conv.Memories) > 0 {
			b.WriteString("### Memories\n\n")
			for _, m := range conv.Memories {
				fmt.Fprintf(&b, "- **%s** (%.2f) %s -> %s", m.Type, m.Importance, m.Trigger, m.Result)
				if m.Reflection != "" {
					fmt.Fprintf(&b, "\n  - *Reflection:* %s", m.Reflection)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}

		if len(conv.History) > 0 {
			b.WriteString("### History\n\n")
			for _, h := range conv.History {
				label := "User"
				if h.Role == models.RoleAssistant {
					label = "Assistant"
					if h.Meta.Speaker != "" {
						label = strings.ToUpper(string(h.Meta.Speaker))
					}
				}
				fmt.Fprintf(&b, "**%s:** %s\n\n", label, h.Content)
			}
		}

		b.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// ExportToFile writes an export in the given format to outputPath
func (r *Repository) ExportToFile(ctx context.Context, outputPath, format, conversationID string) error {
	var write func(io.Writer, *ExportData) error
	switch format {
	case FormatYAML:
		write = WriteYAML
	case FormatMarkdown:
		write = WriteMarkdown
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}

	data, err := r.Export(ctx, conversationID)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return write(file, data)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}
