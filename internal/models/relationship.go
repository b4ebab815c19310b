// ABOUTME: RelationshipState holds per-conversation affection, trust, and mood per persona
// ABOUTME: Provides clamping, effective affection, and qualitative rule brackets
package models

import "time"

// Relationship bounds and defaults
const (
	MinAffection = 0
	MaxAffection = 100
	MinTrust     = 0
	MaxTrust     = 100
	MinMood      = -50
	MaxMood      = 50

	DefaultAffection = 20
	DefaultTrust     = 10
	DefaultMood      = 0
)

// Emotion is the numeric relationship state of a single persona
type Emotion struct {
	Affection int `json:"affection" yaml:"affection"`
	Trust     int `json:"trust" yaml:"trust"`
	Mood      int `json:"mood" yaml:"mood"`
}

// Delta is an additive change to an Emotion
type Delta struct {
	Affection int `json:"affection_delta"`
	Trust     int `json:"trust_delta"`
	Mood      int `json:"mood_delta"`
}

// RelationshipState is the full relationship record of one conversation
type RelationshipState struct {
	ConversationID   string    `json:"conversation_id" yaml:"conversation_id"`
	Demon            Emotion   `json:"demon" yaml:"demon"`
	Angel            Emotion   `json:"angel" yaml:"angel"`
	LastUserActivity time.Time `json:"last_user_activity" yaml:"last_user_activity"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

// DefaultEmotion returns the starting emotion of a persona
func DefaultEmotion() Emotion {
	return Emotion{Affection: DefaultAffection, Trust: DefaultTrust, Mood: DefaultMood}
}

// NewRelationshipState returns the default state for a fresh conversation
func NewRelationshipState(conversationID string, now time.Time) *RelationshipState {
	return &RelationshipState{
		ConversationID:   conversationID,
		Demon:            DefaultEmotion(),
		Angel:            DefaultEmotion(),
		LastUserActivity: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// For returns the emotion of the given persona
func (r *RelationshipState) For(p Persona) Emotion {
	if p == Angel {
		return r.Angel
	}
	return r.Demon
}

// Set replaces the emotion of the given persona
func (r *RelationshipState) Set(p Persona, e Emotion) {
	if p == Angel {
		r.Angel = e
		return
	}
	r.Demon = e
}

// Apply adds d to e and clamps the result into bounds
func (e Emotion) Apply(d Delta) Emotion {
	return Emotion{
		Affection: e.Affection + d.Affection,
		Trust:     e.Trust + d.Trust,
		Mood:      e.Mood + d.Mood,
	}.Clamp()
}

// Clamp forces every value into its valid range
func (e Emotion) Clamp() Emotion {
	return Emotion{
		Affection: clamp(e.Affection, MinAffection, MaxAffection),
		Trust:     clamp(e.Trust, MinTrust, MaxTrust),
		Mood:      clamp(e.Mood, MinMood, MaxMood),
	}
}

// EffectiveAffection is affection shifted by mood: clamp(affection + floor(mood/10), 0, 100)
func (e Emotion) EffectiveAffection() int {
	return clamp(e.Affection+floorDiv(e.Mood, 10), MinAffection, MaxAffection)
}

// Rules are the qualitative behaviour brackets derived from an Emotion
type Rules struct {
	EffectiveAffection int    `json:"effective_affection"`
	Affection          string `json:"affection"`
	Trust              string `json:"trust"`
	Mood               string `json:"mood"`
}

// Rules computes the behaviour brackets; they are never persisted
func (e Emotion) Rules() Rules {
	eff := e.EffectiveAffection()
	return Rules{
		EffectiveAffection: eff,
		Affection:          affectionRule(eff),
		Trust:              trustRule(e.Trust),
		Mood:               moodRule(e.Mood),
	}
}

func affectionRule(eff int) string {
	switch {
	case eff < 20:
		return "hostile: keep replies short, cold and dismissive"
	case eff < 40:
		return "distant: polite but reserved, no personal warmth"
	case eff < 60:
		return "friendly: relaxed, willing to joke and share opinions"
	case eff < 80:
		return "close: warm, attentive, remembers small details"
	default:
		return "devoted: openly affectionate and protective"
	}
}

func trustRule(trust int) string {
	switch {
	case trust < 25:
		return "guarded: reveal nothing about yourself"
	case trust < 50:
		return "cautious: share surface-level thoughts only"
	case trust < 75:
		return "open: share honest feelings when asked"
	default:
		return "confiding: volunteer secrets and vulnerabilities"
	}
}

func moodRule(mood int) string {
	switch {
	case mood <= -30:
		return "furious: irritable, sarcastic, quick to snap"
	case mood <= -10:
		return "sour: grumpy and unenthusiastic"
	case mood < 10:
		return "calm: even-tempered"
	case mood < 30:
		return "cheerful: upbeat and playful"
	default:
		return "elated: exuberant and effusive"
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
