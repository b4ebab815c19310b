// ABOUTME: ContextHydrator assembles persona prompts from emotion, facts, recall, and history
// ABOUTME: Enforces a token budget by dropping the oldest history first
package core

import (
	"fmt"
	"strings"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultMaxTokens is the prompt budget used when none is configured
const DefaultMaxTokens = 6000

// charsPerToken approximates tokens as 4 characters
const charsPerToken = 4

var personaVoices = map[models.Persona]string{
	models.Demon: "You are the Demon: blunt, mischievous and sharp-tongued, but loyal to the user underneath the teasing.",
	models.Angel: "You are the Angel: gentle, earnest and encouraging, though you will not pretend things are fine when they are not.",
}

// Scene is everything a persona needs to speak in one turn
type Scene struct {
	Persona models.Persona
	Mode    models.Mode
	Emotion models.Emotion

	// Facts is the rendered fact block from PersonaMemory.Recall
	Facts string

	// Recall is the rendered vector recall, may be empty
	Recall string

	// History is the stored transcript, oldest first
	History []models.HistoryEntry

	// Transcript holds earlier speakers of the current turn
	Transcript []models.Reply

	// Instruction is an extra directive such as an idle topic
	Instruction string
}

// ContextHydrator builds model messages for a Scene
type ContextHydrator struct {
	contextWindow int
	maxTokens     int
}

// NewContextHydrator creates a hydrator loading at most contextWindow history
// entries into a prompt of at most maxTokens
func NewContextHydrator(contextWindow, maxTokens int) *ContextHydrator {
	if contextWindow <= 0 {
		contextWindow = models.DefaultContextWindow
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ContextHydrator{contextWindow: contextWindow, maxTokens: maxTokens}
}

// SystemPrompt renders the persona's system message
func (h *ContextHydrator) SystemPrompt(s Scene) string {
	var sb strings.Builder

	sb.WriteString(personaVoices[s.Persona])
	sb.WriteString("\n")
	switch {
	case s.Mode.IsGroup():
		fmt.Fprintf(&sb, "You share this conversation with the %s. Speak only as yourself and never write their lines.\n", s.Persona.Other())
	case s.Mode.IsReactive():
		fmt.Fprintf(&sb, "The %s will react to what you say.\n", s.Persona.Other())
	}

	rules := s.Emotion.Rules()
	sb.WriteString("\nHOW YOU FEEL ABOUT THE USER:\n")
	fmt.Fprintf(&sb, "Affection %d (effective %d): %s\n", s.Emotion.Affection, rules.EffectiveAffection, rules.Affection)
	fmt.Fprintf(&sb, "Trust %d: %s\n", s.Emotion.Trust, rules.Trust)
	fmt.Fprintf(&sb, "Mood %d: %s\n", s.Emotion.Mood, rules.Mood)

	if s.Facts != "" {
		sb.WriteString("\nWHAT YOU KNOW:\n")
		sb.WriteString(s.Facts)
	}
	if s.Recall != "" {
		sb.WriteString("\nRELATED MEMORIES:\n")
		sb.WriteString(s.Recall)
	}
	if len(s.Transcript) > 0 {
		sb.WriteString("\nSO FAR IN THIS EXCHANGE:\n")
		for _, r := range s.Transcript {
			fmt.Fprintf(&sb, "%s %s\n", r.Speaker.Signature(), r.Content)
		}
	}
	if s.Instruction != "" {
		sb.WriteString("\n")
		sb.WriteString(s.Instruction)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Messages builds the full request transcript: system prompt, the recent
// history that fits the budget, and the current user message with images.
func (h *ContextHydrator) Messages(s Scene, userText string, images []openai.ChatMessagePart) []openai.ChatCompletionMessage {
	system := h.SystemPrompt(s)
	budget := h.maxTokens*charsPerToken - len(system) - len(userText)

	history := h.Window(s.History, budget)

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, llm.System(system))
	for _, e := range history {
		msgs = append(msgs, historyMessage(s.Persona, e))
	}
	msgs = append(msgs, llm.UserWithImages(userText, images))
	return msgs
}

// Window returns the last contextWindow entries, then drops the oldest until
// the remaining content fits in budget characters
func (h *ContextHydrator) Window(history []models.HistoryEntry, budget int) []models.HistoryEntry {
	if len(history) > h.contextWindow {
		history = history[len(history)-h.contextWindow:]
	}
	if budget <= 0 {
		return nil
	}

	used := 0
	start := len(history)
	for start > 0 {
		n := len(history[start-1].Content)
		if used+n > budget {
			break
		}
		used += n
		start--
	}
	return history[start:]
}

// historyMessage maps a stored entry to a chat message. Lines spoken by the
// other persona are tagged so the model does not mistake them for its own.
func historyMessage(self models.Persona, e models.HistoryEntry) openai.ChatCompletionMessage {
	if e.Role == models.RoleUser {
		return llm.User(e.Content)
	}
	if e.Meta.Speaker != "" && e.Meta.Speaker != self {
		return llm.Assistant(e.Meta.Speaker.Signature() + " " + e.Content)
	}
	return llm.Assistant(e.Content)
}

// FormatHistory renders history as plain "SPEAKER: text" lines for planning prompts
func FormatHistory(history []models.HistoryEntry) string {
	var sb strings.Builder
	for _, e := range history {
		who := "USER"
		if e.Role == models.RoleAssistant {
			who = strings.ToUpper(string(e.Meta.Speaker))
			if who == "" {
				who = "ASSISTANT"
			}
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, e.Content)
	}
	return sb.String()
}
