// ABOUTME: Group dialogue director that plans who speaks and in what order
// ABOUTME: Falls back to a fixed plan whenever the planning call fails or is malformed
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"go.uber.org/zap"
)

// MaxPlanSpeakers bounds the length of a plan
const MaxPlanSpeakers = 4

var (
	userFallbackPlan = []models.Persona{models.Demon}
	idleFallbackPlan = []models.Persona{models.Angel, models.Demon}
)

var errEmptyPlan = errors.New("empty plan")

// PlanRequest is what the director sees before a group turn
type PlanRequest struct {
	// SelfTriggered marks idle turns with no real user message
	SelfTriggered bool
	UserText      string
	History       string
	Facts         string
	Topic         string
	State         models.RelationshipState
}

// Director plans group turns
type Director struct {
	client  llm.ChatCompleter
	model   string
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewDirector creates a director using model for planning
func NewDirector(client llm.ChatCompleter, model string, logger *zap.Logger, m *metrics.Collector) *Director {
	logger = logging.OrNop(logger)
	return &Director{
		client:  client,
		model:   model,
		logger:  logger.With(zap.String("component", "director")),
		metrics: m,
	}
}

// Plan returns the ordered speakers for a group turn. It never fails.
func (d *Director) Plan(ctx context.Context, req PlanRequest) []models.Persona {
	fallback := userFallbackPlan
	if req.SelfTriggered {
		fallback = idleFallbackPlan
	}
	if d.client == nil {
		return clonePlan(fallback)
	}

	reply, err := llm.CompleteText(ctx, d.client, d.model, 0.7,
		llm.System(planSystemPrompt(req)),
		llm.User(planUserPrompt(req)))
	if err != nil {
		d.metrics.RecordModelCall("plan", metrics.StatusError)
		d.logger.Warn("plan call failed, using fallback", zap.Error(err))
		return clonePlan(fallback)
	}
	d.metrics.RecordModelCall("plan", metrics.StatusOK)

	plan, err := ParsePlan(reply)
	if err != nil {
		d.logger.Warn("unusable plan, using fallback", zap.String("reply", reply), zap.Error(err))
		return clonePlan(fallback)
	}
	return plan
}

// ParsePlan accepts a JSON array of persona names or an object with a "plan" array
func ParsePlan(reply string) ([]models.Persona, error) {
	payload, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}

	var names []string
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &names); err != nil {
			return nil, fmt.Errorf("invalid plan array: %w", err)
		}
	} else {
		var wrapped struct {
			Plan []string `json:"plan"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
			return nil, fmt.Errorf("invalid plan object: %w", err)
		}
		names = wrapped.Plan
	}
	if len(names) == 0 {
		return nil, errEmptyPlan
	}

	plan := make([]models.Persona, 0, len(names))
	for _, n := range names {
		p, err := models.ParsePersona(n)
		if err != nil {
			return nil, err
		}
		plan = append(plan, p)
	}
	if len(plan) > MaxPlanSpeakers {
		plan = plan[:MaxPlanSpeakers]
	}
	return plan, nil
}

func planSystemPrompt(req PlanRequest) string {
	return fmt.Sprintf(`You direct a conversation between two personas, the demon and the angel, and a user.
Decide who speaks next and in what order. Either persona may speak more than once, up to %d turns total.
Demon feels: %s
Angel feels: %s

Return ONLY a JSON array of speakers, e.g. ["angel", "demon"].`,
		MaxPlanSpeakers, describe(req.State.Demon), describe(req.State.Angel))
}

func planUserPrompt(req PlanRequest) string {
	if req.SelfTriggered {
		return fmt.Sprintf("The user has gone quiet. The personas want to start chatting about: %s", req.Topic)
	}
	var b strings.Builder
	if req.History != "" {
		b.WriteString("RECENT CONVERSATION:\n")
		b.WriteString(req.History)
		b.WriteString("\n")
	}
	if req.Facts != "" {
		b.WriteString("WHAT THEY KNOW:\n")
		b.WriteString(req.Facts)
		b.WriteString("\n")
	}
	b.WriteString("USER SAYS: ")
	b.WriteString(req.UserText)
	return b.String()
}

func describe(e models.Emotion) string {
	r := e.Rules()
	return fmt.Sprintf("%s; %s; %s", r.Affection, r.Trust, r.Mood)
}

func clonePlan(p []models.Persona) []models.Persona {
	out := make([]models.Persona, len(p))
	copy(out, p)
	return out
}
