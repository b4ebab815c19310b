// ABOUTME: Self-reflection pass over recent high-signal episodic memories
// ABOUTME: Writes one insight back per memory and stores a summary experience
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"go.uber.org/zap"
)

// Reflection selection window
const (
	ReflectionLookback      = 24 * time.Hour
	ReflectionMinImportance = 0.6
	ReflectionBatch         = 20
)

// ReflectionReport summarizes one reflection pass
type ReflectionReport struct {
	Considered   int    `json:"considered"`
	Reflected    int    `json:"reflected"`
	Summary      string `json:"summary,omitempty"`
	ExperienceID string `json:"experience_id,omitempty"`
}

// Reflector annotates recent memories with insights
type Reflector struct {
	base
	ltm    *LongTermMemory
	client llm.ChatCompleter
	model  string
}

// NewReflector creates a reflector
func NewReflector(ltm *LongTermMemory, client llm.ChatCompleter, model string, opts ...Option) *Reflector {
	return &Reflector{
		base:   newBase("reflection", opts),
		ltm:    ltm,
		client: client,
		model:  model,
	}
}

type reflectionReply struct {
	Insights []struct {
		ID         string `json:"id"`
		Reflection string `json:"reflection"`
	} `json:"insights"`
	Summary string `json:"summary"`
}

// Reflect runs one pass. Nothing to reflect on is not an error.
func (r *Reflector) Reflect(ctx context.Context) (*ReflectionReport, error) {
	memories := r.ltm.Retrieve(ctx, models.MemoryFilter{
		Since:             r.now().Add(-ReflectionLookback),
		MinImportance:     ReflectionMinImportance,
		WithoutReflection: true,
		Limit:             ReflectionBatch,
	})
	report := &ReflectionReport{Considered: len(memories)}
	if len(memories) == 0 {
		return report, nil
	}

	payload, err := json.Marshal(memories)
	if err != nil {
		return report, fmt.Errorf("failed to encode memories: %w", err)
	}

	systemPrompt := `You are reviewing your own recent memories to learn from them.
For each memory write one short insight about what it teaches you.

Return ONLY a JSON object:
{"insights": [{"id": "<memory id>", "reflection": "insight"}], "summary": "one paragraph of overall lessons"}`

	var reply reflectionReply
	if err := llm.CompleteJSON(ctx, r.client, r.model, systemPrompt, string(payload), 0.4, &reply); err != nil {
		r.metrics.RecordModelCall("reflection", metrics.StatusError)
		return report, fmt.Errorf("reflection call failed: %w", err)
	}
	r.metrics.RecordModelCall("reflection", metrics.StatusOK)

	known := make(map[string]bool, len(memories))
	for _, m := range memories {
		known[m.ID] = true
	}

	for _, in := range reply.Insights {
		text := strings.TrimSpace(in.Reflection)
		if !known[in.ID] || text == "" {
			continue
		}
		ok, err := r.ltm.AddReflection(ctx, in.ID, text)
		if err != nil {
			r.logger.Warn("reflection not saved", zap.String("memory_id", in.ID), zap.Error(err))
			continue
		}
		if ok {
			report.Reflected++
		}
	}

	report.Summary = strings.TrimSpace(reply.Summary)
	if report.Summary != "" {
		id, err := r.ltm.StoreExperience(ctx, sharedConversation(memories),
			fmt.Sprintf("reflecting on %d recent memories", len(memories)),
			"reviewed what happened and what it meant",
			report.Summary)
		if err != nil {
			r.logger.Warn("reflection summary not stored", zap.Error(err))
		} else {
			report.ExperienceID = id
		}
	}

	r.logger.Info("reflection complete",
		zap.Int("considered", report.Considered),
		zap.Int("reflected", report.Reflected))
	return report, nil
}

// sharedConversation returns the conversation every memory belongs to, or ""
func sharedConversation(memories []models.EpisodicMemory) string {
	if len(memories) == 0 {
		return ""
	}
	id := memories[0].ConversationID
	for _, m := range memories[1:] {
		if m.ConversationID != id {
			return ""
		}
	}
	return id
}
