// ABOUTME: Built-in memory tools: remember_fact, recall_memories, search_experiences, current_time
// ABOUTME: Each tool resolves its conversation from the turn carried in the context
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
)

// Recaller renders similarity recall for a query. *core.VectorBridge satisfies it.
type Recaller interface {
	Recall(ctx context.Context, query, conversationID string, limit int) string
}

// Retriever lists episodic memories. *core.LongTermMemory satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, filter models.MemoryFilter) []models.EpisodicMemory
}

var errNoConversation = errors.New("no conversation in context")

// RememberFact lets a persona store a fact mid-turn
func RememberFact(store storage.FactStore) Tool {
	return Tool{
		Name:        "remember_fact",
		Description: "Remember a durable fact about the user, yourself, or your shared relationship.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Short snake_case identifier, e.g. favorite_food",
				},
				"detail": map[string]interface{}{
					"type":        "string",
					"description": "The fact, in one sentence",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"user", "agent", "us"},
					"description": "Who the fact is about (default: user)",
				},
			},
			"required": []string{"key", "detail"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			turn, ok := TurnFrom(ctx)
			if !ok || turn.ConversationID == "" {
				return "", errNoConversation
			}
			key := StringArg(args, "key")
			detail := StringArg(args, "detail")
			if key == "" || detail == "" {
				return "", fmt.Errorf("key and detail are required")
			}

			scope := models.ScopeUser
			if s := StringArg(args, "scope"); s != "" {
				parsed, err := models.ParseScope(s)
				if err != nil {
					return "", err
				}
				scope = parsed
			}
			if turn.Persona.Valid() && !strings.HasPrefix(detail, turn.Persona.Signature()) {
				detail = turn.Persona.Signature() + " " + detail
			}

			if err := store.SaveFact(ctx, turn.ConversationID, key, detail, scope); err != nil {
				return "", fmt.Errorf("failed to save fact: %w", err)
			}
			return fmt.Sprintf("Remembered %s.", models.NormalizeFactKey(key)), nil
		},
	}
}

// RecallMemories searches long-term vector memory
func RecallMemories(recaller Recaller) Tool {
	return Tool{
		Name:        "recall_memories",
		Description: "Search your long-term memory for moments related to a query.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum memories to return (default: 5)",
					"default":     5,
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query := StringArg(args, "query")
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			turn, _ := TurnFrom(ctx)
			text := recaller.Recall(ctx, query, turn.ConversationID, clampLimit(IntArg(args, "limit", 5)))
			if text == "" {
				return "No related memories.", nil
			}
			return text, nil
		},
	}
}

// SearchExperiences lists recent episodic memories, optionally by type
func SearchExperiences(retriever Retriever) Tool {
	return Tool{
		Name:        "search_experiences",
		Description: "List your most recent structured memories, optionally filtered by type.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"tool_use", "experience", "conversation", "reflection"},
					"description": "Memory type to filter by",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum memories to return (default: 5)",
					"default":     5,
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			turn, _ := TurnFrom(ctx)
			memories := retriever.Retrieve(ctx, models.MemoryFilter{
				ConversationID: turn.ConversationID,
				Type:           models.MemoryType(StringArg(args, "type")),
				Limit:          clampLimit(IntArg(args, "limit", 5)),
			})
			if len(memories) == 0 {
				return "No matching experiences.", nil
			}

			var b strings.Builder
			for _, m := range memories {
				fmt.Fprintf(&b, "- [%s %.1f] %s -> %s -> %s", m.Type, m.Importance, m.Trigger, m.Action, m.Result)
				if m.Reflection != "" {
					fmt.Fprintf(&b, " (reflection: %s)", m.Reflection)
				}
				b.WriteString("\n")
			}
			return b.String(), nil
		},
	}
}

// CurrentTime reports the current local time
func CurrentTime(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Name:        "current_time",
		Description: "Get the current date and time.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return now().Format("Monday, 2 January 2006 15:04 MST"), nil
		},
	}
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > 20 {
		return 20
	}
	return n
}

// Builtins returns the standard tool set. A nil recaller or retriever omits its tool.
func Builtins(facts storage.FactStore, recaller Recaller, retriever Retriever, now func() time.Time) []Tool {
	tools := []Tool{CurrentTime(now)}
	if facts != nil {
		tools = append(tools, RememberFact(facts))
	}
	if recaller != nil {
		tools = append(tools, RecallMemories(recaller))
	}
	if retriever != nil {
		tools = append(tools, SearchExperiences(retriever))
	}
	return tools
}
