// ABOUTME: Bounded tool execution loop driving one persona's reasoning call
// ABOUTME: Folds tool results back into the transcript and records each call as a memory
package agent

import (
	"context"
	"fmt"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/metrics"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/tools"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// StepLimitMessage is returned when the model keeps requesting tools
const StepLimitMessage = "Took too long, aborting this turn."

// DefaultMaxSteps bounds model calls per loop run
const DefaultMaxSteps = 5

// Tool-use memory shape
const (
	toolUseImportance = 0.5
	maxToolResultLen  = 200
)

// Recorder stores episodic memories. *core.LongTermMemory satisfies it.
type Recorder interface {
	Record(ctx context.Context, m *models.EpisodicMemory) (string, error)
}

// LoopResult is the outcome of one loop run
type LoopResult struct {
	Text      string
	Steps     int
	ToolCalls int
	Exhausted bool
}

// ToolLoop runs the think/act cycle for one persona
type ToolLoop struct {
	client   llm.ChatCompleter
	model    string
	registry *tools.Registry
	recorder Recorder
	maxSteps int
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewToolLoop creates a loop. registry and recorder may be nil.
func NewToolLoop(client llm.ChatCompleter, model string, registry *tools.Registry, recorder Recorder, maxSteps int, logger *zap.Logger, m *metrics.Collector) *ToolLoop {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	logger = logging.OrNop(logger)
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &ToolLoop{
		client:   client,
		model:    model,
		registry: registry,
		recorder: recorder,
		maxSteps: maxSteps,
		logger:   logger.With(zap.String("component", "tool_loop")),
		metrics:  m,
	}
}

// Run drives the loop until the model answers without tool calls or the step
// bound is reached. Only model-call failures are returned as errors.
func (l *ToolLoop) Run(ctx context.Context, conversationID string, persona models.Persona, messages []openai.ChatCompletionMessage) (LoopResult, error) {
	transcript := make([]openai.ChatCompletionMessage, len(messages))
	copy(transcript, messages)

	trigger := lastUserText(messages)
	defs := l.registry.Definitions()
	toolCtx := tools.WithTurn(ctx, conversationID, persona)

	var res LoopResult
	for res.Steps < l.maxSteps {
		res.Steps++

		req := openai.ChatCompletionRequest{
			Model:    l.model,
			Messages: transcript,
		}
		if len(defs) > 0 {
			req.Tools = defs
		}

		resp, err := l.client.CreateChatCompletion(ctx, req)
		if err != nil {
			l.metrics.RecordModelCall("reply", metrics.StatusError)
			return res, fmt.Errorf("reasoning call failed at step %d: %w", res.Steps, err)
		}
		l.metrics.RecordModelCall("reply", metrics.StatusOK)

		msg, err := llm.FirstMessage(resp)
		if err != nil {
			return res, err
		}
		if len(msg.ToolCalls) == 0 {
			res.Text = msg.Content
			return res, nil
		}

		transcript = append(transcript, msg)
		for _, call := range msg.ToolCalls {
			res.ToolCalls++
			result := l.execute(toolCtx, conversationID, persona, trigger, call)
			transcript = append(transcript, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	l.logger.Warn("tool loop hit step limit",
		zap.String("conversation_id", conversationID),
		zap.String("persona", string(persona)),
		zap.Int("steps", res.Steps),
		zap.Int("tool_calls", res.ToolCalls))
	res.Text = StepLimitMessage
	res.Exhausted = true
	return res, nil
}

func (l *ToolLoop) execute(ctx context.Context, conversationID string, persona models.Persona, trigger string, call openai.ToolCall) string {
	name := call.Function.Name
	result, err := l.registry.Execute(ctx, name, call.Function.Arguments)

	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
		l.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.String("persona", string(persona)),
			zap.Error(err))
	}
	l.metrics.RecordToolCall(name, status)

	if l.recorder != nil {
		_, rerr := l.recorder.Record(ctx, &models.EpisodicMemory{
			ConversationID: conversationID,
			Type:           models.MemoryToolUse,
			Trigger:        trigger,
			Action:         fmt.Sprintf("%s(%s)", name, call.Function.Arguments),
			Result:         truncate(result, maxToolResultLen),
			Importance:     toolUseImportance,
		})
		if rerr != nil {
			l.logger.Warn("tool use not recorded", zap.String("tool", name), zap.Error(rerr))
		}
	}
	return result
}

func lastUserText(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != openai.ChatMessageRoleUser {
			continue
		}
		if m.Content != "" {
			return m.Content
		}
		for _, p := range m.MultiContent {
			if p.Type == openai.ChatMessagePartTypeText {
				return p.Text
			}
		}
		if len(m.MultiContent) > 0 {
			return ImagePlaceholder
		}
		return ""
	}
	return ""
}

// truncate cuts s to at most n runes
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
