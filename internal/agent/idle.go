// ABOUTME: Strategies for choosing which conversation gets an idle background chat
// ABOUTME: Recency picks the latest activity; affection draws a weighted random idle conversation
package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
)

// IdleSelector chooses a candidate conversation for proactive chat
type IdleSelector interface {
	Select(ctx context.Context) (conversationID string, lastActivity time.Time, ok bool)
}

// RecencySelector picks the conversation with the most recent user activity
type RecencySelector struct {
	store storage.RelationshipStore
}

// NewRecencySelector creates a recency strategy
func NewRecencySelector(store storage.RelationshipStore) *RecencySelector {
	return &RecencySelector{store: store}
}

// Select implements IdleSelector
func (s *RecencySelector) Select(ctx context.Context) (string, time.Time, bool) {
	return s.store.GetMostActiveUser(ctx)
}

// AffectionSelector draws among conversations idle longer than idleAfter,
// weighted by the personas' average effective affection
type AffectionSelector struct {
	store     storage.RelationshipStore
	rng       core.Random
	now       func() time.Time
	idleAfter time.Duration
}

// NewAffectionSelector creates an affection-weighted strategy
func NewAffectionSelector(store storage.RelationshipStore, rng core.Random, now func() time.Time, idleAfter time.Duration) *AffectionSelector {
	if rng == nil {
		rng = core.SystemRand()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AffectionSelector{store: store, rng: rng, now: now, idleAfter: idleAfter}
}

// Select implements IdleSelector
func (s *AffectionSelector) Select(ctx context.Context) (string, time.Time, bool) {
	states := s.store.ListRelationships(ctx)
	cutoff := s.now().Add(-s.idleAfter)

	var (
		candidates []models.RelationshipState
		weights    []int
		total      int
	)
	sort.Slice(states, func(i, j int) bool { return states[i].ConversationID < states[j].ConversationID })
	for _, st := range states {
		if !st.LastUserActivity.Before(cutoff) {
			continue
		}
		// +1 keeps fully hostile conversations reachable
		w := (st.Demon.EffectiveAffection()+st.Angel.EffectiveAffection())/2 + 1
		candidates = append(candidates, st)
		weights = append(weights, w)
		total += w
	}
	if len(candidates) == 0 {
		return "", time.Time{}, false
	}

	draw := s.rng.IntN(total)
	for i, w := range weights {
		if draw < w {
			return candidates[i].ConversationID, candidates[i].LastUserActivity, true
		}
		draw -= w
	}
	last := candidates[len(candidates)-1]
	return last.ConversationID, last.LastUserActivity, true
}

// NewIdleSelector builds the strategy named by config
func NewIdleSelector(strategy string, store storage.RelationshipStore, rng core.Random, now func() time.Time, idleAfter time.Duration) (IdleSelector, error) {
	switch strategy {
	case "", config.StrategyRecency:
		return NewRecencySelector(store), nil
	case config.StrategyAffection:
		return NewAffectionSelector(store, rng, now, idleAfter), nil
	}
	return nil, fmt.Errorf("unknown idle strategy %q", strategy)
}
