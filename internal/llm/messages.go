// ABOUTME: Message helpers for building requests and decoding model output
// ABOUTME: Extracts JSON payloads from replies that wrap them in prose or fences
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoJSON is returned when a reply contains no JSON object or array
var ErrNoJSON = errors.New("no JSON payload in model reply")

// System builds a system message
func System(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content}
}

// User builds a text-only user message
func User(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content}
}

// Assistant builds an assistant message
func Assistant(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}
}

// UserWithImages builds a user message carrying image parts alongside the text.
// Without images it degrades to a plain text message.
func UserWithImages(text string, images []openai.ChatMessagePart) openai.ChatCompletionMessage {
	if len(images) == 0 {
		return User(text)
	}
	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	parts = append(parts, images...)
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// FirstMessage returns the first choice's message
func FirstMessage(resp openai.ChatCompletionResponse) (openai.ChatCompletionMessage, error) {
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, ErrNoChoices
	}
	return resp.Choices[0].Message, nil
}

// ExtractJSON returns the outermost JSON object or array found in s
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

// CompleteText runs a single tool-free completion and returns the reply text
func CompleteText(ctx context.Context, c ChatCompleter, model string, temperature float32, messages ...openai.ChatCompletionMessage) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	msg, err := FirstMessage(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// CompleteJSON runs a JSON-mode completion and decodes the reply into out
func CompleteJSON(ctx context.Context, c ChatCompleter, model, systemPrompt, userPrompt string, temperature float32, out any) error {
	resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			System(systemPrompt),
			User(userPrompt),
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return err
	}
	msg, err := FirstMessage(resp)
	if err != nil {
		return err
	}
	payload, err := ExtractJSON(msg.Content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
