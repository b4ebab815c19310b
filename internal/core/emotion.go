// ABOUTME: Emotion engine that turns user text into relationship deltas per persona
// ABOUTME: Adds random mood drift, clamps, persists, and never fails a turn on model errors
package core

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"go.uber.org/zap"
)

// EmotionSnapshot is the current state plus the derived behavior brackets
type EmotionSnapshot struct {
	State models.RelationshipState        `json:"state"`
	Rules map[models.Persona]models.Rules `json:"rules"`
}

// EmotionEngine owns every mutation of relationship state
type EmotionEngine struct {
	base
	store  storage.RelationshipStore
	client llm.ChatCompleter
	model  string
}

// NewEmotionEngine creates an engine analysing text with model
func NewEmotionEngine(store storage.RelationshipStore, client llm.ChatCompleter, model string, opts ...Option) *EmotionEngine {
	return &EmotionEngine{
		base:   newBase("emotion", opts),
		store:  store,
		client: client,
		model:  model,
	}
}

// GetState returns the conversation's state, creating defaults on first access.
// When the store fails the defaults are returned unpersisted along with the error.
func (e *EmotionEngine) GetState(ctx context.Context, conversationID string) (*EmotionSnapshot, error) {
	state, err := e.ensure(ctx, conversationID)
	return NewSnapshot(state), err
}

// Perceive runs one reaction analysis per persona, applies the deltas plus
// drift, clamps, refreshes last_user_activity, and persists the result.
// The returned state is always usable; the error only reports persistence.
func (e *EmotionEngine) Perceive(ctx context.Context, conversationID, text string, personas []models.Persona) (*models.RelationshipState, error) {
	state, err := e.ensure(ctx, conversationID)
	if err != nil {
		e.logger.Warn("relationship not persisted, using defaults",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	for _, p := range personas {
		if !p.Valid() {
			continue
		}
		current := state.For(p)

		delta, err := e.analyze(ctx, p, current, text)
		if err != nil {
			e.logger.Warn("reaction analysis failed, nudging mood",
				zap.String("conversation_id", conversationID),
				zap.String("persona", string(p)),
				zap.Error(err))
			e.metrics.RecordModelCall("emotion", metrics.StatusError)
			delta = models.Delta{Mood: e.nudge()}
		} else {
			e.metrics.RecordModelCall("emotion", metrics.StatusOK)
			delta.Mood += e.drift()
		}

		state.Set(p, current.Apply(delta))
	}

	state.LastUserActivity = e.now()
	if err := e.store.UpdateRelationship(ctx, state); err != nil {
		return state, fmt.Errorf("failed to persist relationship: %w", err)
	}
	return state, nil
}

func (e *EmotionEngine) ensure(ctx context.Context, conversationID string) (*models.RelationshipState, error) {
	if state := e.store.GetRelationship(ctx, conversationID); state != nil {
		return state, nil
	}
	fresh := models.NewRelationshipState(conversationID, e.now())
	stored, err := e.store.CreateRelationship(ctx, fresh)
	if err != nil {
		return fresh, err
	}
	return stored, nil
}

// drift is uniformly -1, 0 or +1
func (e *EmotionEngine) drift() int {
	return e.rng.IntN(3) - 1
}

// nudge is uniformly -1 or +1
func (e *EmotionEngine) nudge() int {
	if e.rng.IntN(2) == 0 {
		return -1
	}
	return 1
}

func (e *EmotionEngine) analyze(ctx context.Context, p models.Persona, current models.Emotion, text string) (models.Delta, error) {
	if e.client == nil {
		return models.Delta{}, fmt.Errorf("no analysis model configured")
	}
	rules := current.Rules()
	systemPrompt := fmt.Sprintf(`You track how the %s persona feels about the user.
Current values: affection=%d (%s), trust=%d (%s), mood=%d (%s).
Read the user's message and decide how it shifts these feelings.

Return ONLY a JSON object with integer fields:
{"affection_delta": n, "trust_delta": n, "mood_delta": n}
Keep each delta between -10 and 10. Use 0 when nothing changes.`,
		p, current.Affection, rules.Affection, current.Trust, rules.Trust, current.Mood, rules.Mood)

	var delta models.Delta
	if err := llm.CompleteJSON(ctx, e.client, e.model, systemPrompt, text, 0.3, &delta); err != nil {
		return models.Delta{}, err
	}
	return delta, nil
}

// NewSnapshot derives the behavior brackets for state
func NewSnapshot(state *models.RelationshipState) *EmotionSnapshot {
	s := &EmotionSnapshot{
		State: *state,
		Rules: make(map[models.Persona]models.Rules, len(models.Personas)),
	}
	for _, p := range models.Personas {
		s.Rules[p] = state.For(p).Rules()
	}
	return s
}
