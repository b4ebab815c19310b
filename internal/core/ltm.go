// ABOUTME: Long-term memory coordinator writing episodic records and gating vector sync
// ABOUTME: High-importance memories are embedded once, in the background, best-effort
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"go.uber.org/zap"
)

// Memorizer indexes text for similarity recall. *VectorBridge satisfies it.
type Memorizer interface {
	Memorize(ctx context.Context, text string, meta models.VectorMetadata) (string, error)
}

// vectorSource tags vectors written by the coordinator
const vectorSource = "episodic"

// LongTermMemory coordinates the episodic store and the vector index
type LongTermMemory struct {
	base
	store     storage.MemoryStore
	vectors   Memorizer
	client    llm.ChatCompleter
	model     string
	threshold float64
}

// LTMConfig holds the coordinator's tunables
type LTMConfig struct {
	// Threshold is the importance at or above which memories are vectorized
	Threshold float64

	// Scorer and Model rate interactions for RecordInteraction; nil disables it
	Scorer llm.ChatCompleter
	Model  string
}

// NewLongTermMemory creates a coordinator. vectors may be nil; a zero
// Threshold falls back to models.DefaultVectorThreshold.
func NewLongTermMemory(store storage.MemoryStore, vectors Memorizer, cfg LTMConfig, opts ...Option) *LongTermMemory {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = models.DefaultVectorThreshold
	}
	return &LongTermMemory{
		base:      newBase("ltm", opts),
		store:     store,
		vectors:   vectors,
		client:    cfg.Scorer,
		model:     cfg.Model,
		threshold: threshold,
	}
}

// Record writes m to the episodic store and, when its importance meets the
// threshold, schedules one background vector sync linked to the new id.
func (l *LongTermMemory) Record(ctx context.Context, m *models.EpisodicMemory) (string, error) {
	if m == nil {
		return "", errors.New("memory cannot be nil")
	}
	if m.Importance < 0 {
		m.Importance = 0
	} else if m.Importance > 1 {
		m.Importance = 1
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now()
	}

	id, err := l.store.CreateMemory(ctx, m)
	if err != nil {
		return "", fmt.Errorf("failed to record memory: %w", err)
	}
	m.ID = id

	if l.vectors != nil && m.Importance >= l.threshold {
		record := *m
		err := l.tasks.Go(ctx, "vector_sync", func(ctx context.Context) error {
			_, err := l.vectors.Memorize(ctx, Sentence(record), models.VectorMetadata{
				Source:         vectorSource,
				OriginalType:   record.Type,
				SQLID:          record.ID,
				ConversationID: record.ConversationID,
			})
			return err
		})
		if err != nil {
			l.logger.Warn("vector sync not scheduled", zap.String("memory_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// Retrieve returns memories matching filter, most recent first
func (l *LongTermMemory) Retrieve(ctx context.Context, filter models.MemoryFilter) []models.EpisodicMemory {
	return l.store.GetMemories(ctx, filter)
}

// AddReflection attaches a reflection to a memory; it can be set only once
func (l *LongTermMemory) AddReflection(ctx context.Context, id, reflection string) (bool, error) {
	return l.store.UpdateReflection(ctx, id, reflection)
}

// StoreExperience records a self-improvement artifact at ExperienceImportance
func (l *LongTermMemory) StoreExperience(ctx context.Context, conversationID, trigger, action, result string) (string, error) {
	return l.Record(ctx, &models.EpisodicMemory{
		ConversationID: conversationID,
		Type:           models.MemoryExperience,
		Trigger:        trigger,
		Action:         action,
		Result:         result,
		Importance:     models.ExperienceImportance,
	})
}

type interactionScore struct {
	Importance float64 `json:"importance_score"`
	Summary    string  `json:"summary"`
}

// RecordInteraction asks the model how memorable an exchange was and records
// it as an experience. A failed or malformed score skips the write.
func (l *LongTermMemory) RecordInteraction(ctx context.Context, conversationID, userText, reply string) (string, error) {
	if l.client == nil {
		return "", nil
	}

	systemPrompt := `Rate how important this exchange is to remember long-term.
Return ONLY a JSON object:
{"importance_score": 0.0-1.0, "summary": "one sentence describing what happened"}
Small talk scores below 0.3; personal revelations, decisions and conflicts score above 0.7.`
	userPrompt := fmt.Sprintf("USER: %s\nREPLY: %s", userText, reply)

	var score interactionScore
	if err := llm.CompleteJSON(ctx, l.client, l.model, systemPrompt, userPrompt, 0.2, &score); err != nil {
		l.logger.Debug("interaction not scored", zap.String("conversation_id", conversationID), zap.Error(err))
		l.metrics.RecordModelCall("score_interaction", metrics.StatusError)
		return "", nil
	}
	l.metrics.RecordModelCall("score_interaction", metrics.StatusOK)

	return l.Record(ctx, &models.EpisodicMemory{
		ConversationID: conversationID,
		Type:           models.MemoryExperience,
		Trigger:        userText,
		Action:         truncate(reply, 500),
		Result:         strings.TrimSpace(score.Summary),
		Importance:     score.Importance,
	})
}

// Sentence renders a memory as one natural-language sentence for embedding
func Sentence(m models.EpisodicMemory) string {
	var s string
	switch m.Type {
	case models.MemoryExperience:
		s = fmt.Sprintf("When %s, I %s, and learned that %s.", clause(m.Trigger), clause(m.Action), clause(m.Result))
	case models.MemoryToolUse:
		s = fmt.Sprintf("To handle %s, I used the tool %s and got %s.", clause(m.Trigger), clause(m.Action), clause(m.Result))
	default:
		s = fmt.Sprintf("A %s memory: %s led to %s with the outcome %s.", m.Type, clause(m.Trigger), clause(m.Action), clause(m.Result))
	}
	if m.Reflection != "" {
		s += " Reflection: " + clause(m.Reflection) + "."
	}
	return s
}

// clause flattens whitespace and strips trailing sentence punctuation
func clause(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!? ")
	if s == "" {
		return "nothing in particular"
	}
	return s
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
