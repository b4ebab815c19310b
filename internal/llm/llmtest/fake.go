// ABOUTME: Scripted chat-completion fake for tests across the engine
// ABOUTME: Routes requests to handlers and records every request it sees
package llmtest

import (
	"context"
	"errors"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ErrScriptExhausted is returned when a queued fake has no more replies
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// HandlerFunc answers one request
type HandlerFunc func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

// Fake satisfies llm.ChatCompleter. When Handler is set it answers every
// request; otherwise queued replies are returned in order.
type Fake struct {
	mu       sync.Mutex
	Handler  HandlerFunc
	queue    []reply
	requests []openai.ChatCompletionRequest
}

type reply struct {
	resp openai.ChatCompletionResponse
	err  error
}

// New returns a fake answering with handler
func New(handler HandlerFunc) *Fake {
	return &Fake{Handler: handler}
}

// Queue appends responses returned in order when no Handler is set
func (f *Fake) Queue(resps ...openai.ChatCompletionResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range resps {
		f.queue = append(f.queue, reply{resp: r})
	}
	return f
}

// QueueError appends an error reply
func (f *Fake) QueueError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, reply{err: err})
	return f
}

// CreateChatCompletion implements llm.ChatCompleter
func (f *Fake) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.Handler
	var next *reply
	if handler == nil && len(f.queue) > 0 {
		r := f.queue[0]
		f.queue = f.queue[1:]
		next = &r
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if handler != nil {
		return handler(req)
	}
	if next == nil {
		return openai.ChatCompletionResponse{}, ErrScriptExhausted
	}
	return next.resp, next.err
}

// Requests returns a copy of every request seen so far
func (f *Fake) Requests() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]openai.ChatCompletionRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Calls returns how many requests were made
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Text builds a response with a single plain assistant message
func Text(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
	}
}

// Call describes one tool call in a scripted response
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCalls builds a response requesting the given tool calls
func ToolCalls(calls ...Call) openai.ChatCompletionResponse {
	tc := make([]openai.ToolCall, 0, len(calls))
	for _, c := range calls {
		tc = append(tc, openai.ToolCall{
			ID:   c.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: tc,
			},
			FinishReason: openai.FinishReasonToolCalls,
		}},
	}
}

// SystemPrompt returns the content of the first system message in req
func SystemPrompt(req openai.ChatCompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role == openai.ChatMessageRoleSystem {
			return m.Content
		}
	}
	return ""
}

// LastUser returns the content of the last user message in req
func LastUser(req openai.ChatCompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
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
	}
	return ""
}
