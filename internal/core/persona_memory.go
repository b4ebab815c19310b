// ABOUTME: Persona memory engine that recalls scoped facts and extracts new ones
// ABOUTME: Extraction tags each fact with the recording persona's signature
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"go.uber.org/zap"
)

// noneMarker renders an empty fact bucket
const noneMarker = "(none)"

// Recollection is the recalled fact set and its prompt rendering
type Recollection struct {
	Facts []models.Fact `json:"facts"`
	Text  string        `json:"text"`
}

// PersonaMemory recalls and records conversation facts
type PersonaMemory struct {
	base
	store  storage.FactStore
	client llm.ChatCompleter
	model  string
}

// NewPersonaMemory creates a persona memory engine
func NewPersonaMemory(store storage.FactStore, client llm.ChatCompleter, model string, opts ...Option) *PersonaMemory {
	return &PersonaMemory{
		base:   newBase("persona_memory", opts),
		store:  store,
		client: client,
		model:  model,
	}
}

// Recall loads every fact for the conversation and renders them by scope
func (p *PersonaMemory) Recall(ctx context.Context, conversationID string) Recollection {
	facts := p.store.GetFacts(ctx, conversationID)
	return Recollection{Facts: facts, Text: FormatFacts(facts)}
}

// FormatFacts renders facts as three scope sections in key order
func FormatFacts(facts []models.Fact) string {
	buckets := map[models.FactScope][]models.Fact{}
	for _, f := range facts {
		buckets[f.Scope] = append(buckets[f.Scope], f)
	}

	sections := []struct {
		scope models.FactScope
		title string
	}{
		{models.ScopeUser, "About the user"},
		{models.ScopeAgent, "About us (the personas)"},
		{models.ScopeUs, "Our shared history"},
	}

	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n", s.title)

		bucket := buckets[s.scope]
		if len(bucket) == 0 {
			fmt.Fprintf(&b, "- %s\n", noneMarker)
			continue
		}
		sort.Slice(bucket, func(a, c int) bool { return bucket[a].Key < bucket[c].Key })
		for _, f := range bucket {
			fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Detail)
		}
	}
	return b.String()
}

type extractedFact struct {
	Key    string `json:"fact_key"`
	Detail string `json:"fact_detail"`
	Scope  string `json:"scope"`
}

// Memorize asks the model for at most one new fact from the exchange and
// upserts it. A reply without a usable fact returns (nil, nil).
func (p *PersonaMemory) Memorize(ctx context.Context, conversationID, userText, aiText string, mode models.Mode) (*models.Fact, error) {
	if p.client == nil {
		return nil, nil
	}
	recorder := p.recorder(mode)

	systemPrompt := fmt.Sprintf(`You are the %s persona's memory.
Read the exchange and decide whether it reveals ONE durable fact worth remembering:
something about the user, about you, or about your shared relationship.

Return ONLY a JSON object:
{"fact_key": "short_snake_case_key", "fact_detail": "one sentence", "scope": "user" | "agent" | "us"}
If there is nothing new worth remembering return {}.`, recorder)
	userPrompt := fmt.Sprintf("USER: %s\nREPLY: %s", userText, aiText)

	var extracted extractedFact
	if err := llm.CompleteJSON(ctx, p.client, p.model, systemPrompt, userPrompt, 0.2, &extracted); err != nil {
		p.logger.Debug("no fact extracted", zap.String("conversation_id", conversationID), zap.Error(err))
		p.metrics.RecordModelCall("extract_fact", metrics.StatusError)
		return nil, nil
	}
	p.metrics.RecordModelCall("extract_fact", metrics.StatusOK)

	key := models.NormalizeFactKey(extracted.Key)
	detail := strings.TrimSpace(extracted.Detail)
	if key == "" || detail == "" {
		return nil, nil
	}

	scope, err := models.ParseScope(extracted.Scope)
	if err != nil {
		scope = models.ScopeUser
	}

	sig := recorder.Signature()
	if !strings.HasPrefix(detail, sig) {
		detail = sig + " " + detail
	}

	if err := p.store.SaveFact(ctx, conversationID, key, detail, scope); err != nil {
		return nil, fmt.Errorf("failed to save fact %q: %w", key, err)
	}

	p.logger.Debug("fact memorized",
		zap.String("conversation_id", conversationID),
		zap.String("key", key),
		zap.String("scope", string(scope)))

	return &models.Fact{
		ConversationID: conversationID,
		Key:            key,
		Detail:         detail,
		Scope:          scope,
		UpdatedAt:      p.now(),
	}, nil
}

// recorder picks who writes the fact: a coin flip in group mode, otherwise the primary
func (p *PersonaMemory) recorder(mode models.Mode) models.Persona {
	if mode.IsGroup() {
		return models.Personas[p.rng.IntN(len(models.Personas))]
	}
	return mode.Primary()
}
