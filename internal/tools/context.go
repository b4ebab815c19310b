// ABOUTME: Request-scoped turn details carried to tools through the context
// ABOUTME: Tools read the conversation id and speaking persona from here
package tools

import (
	"context"

	"github.com/harper/duet/internal/models"
)

type turnKey struct{}

// Turn identifies who is calling a tool
type Turn struct {
	ConversationID string
	Persona        models.Persona
}

// WithTurn attaches turn details to ctx
func WithTurn(ctx context.Context, conversationID string, persona models.Persona) context.Context {
	return context.WithValue(ctx, turnKey{}, Turn{ConversationID: conversationID, Persona: persona})
}

// TurnFrom returns the turn details, if any
func TurnFrom(ctx context.Context) (Turn, bool) {
	t, ok := ctx.Value(turnKey{}).(Turn)
	return t, ok
}
