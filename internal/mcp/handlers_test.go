// ABOUTME: Tests for MCP tool handlers
// ABOUTME: Drives handlers with in-memory storage and a scripted model
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/llm/llmtest"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(t *testing.T) (*Handlers, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.NewRepositoryInMemory()
	require.NoError(t, err)

	fake := llmtest.New(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		sys := llmtest.SystemPrompt(req)
		switch {
		case strings.Contains(sys, "You track how the"):
			return llmtest.Text(`{"affection_delta": 2, "trust_delta": 0, "mood_delta": 0}`), nil
		case strings.HasPrefix(sys, "You are the Angel"):
			return llmtest.Text("hello, friend"), nil
		case strings.HasPrefix(sys, "You are the Demon"):
			return llmtest.Text("what now"), nil
		}
		return llmtest.Text(`{}`), nil
	})

	cfg := &config.Config{
		ChatModel: "chat", FastModel: "fast", MaxToolSteps: 5, HistoryCap: 60, ContextWindow: 20,
		VectorThreshold: 0.8, RestartMarker: "[[SYSTEM_RESTART]]", IdleAfter: time.Hour,
		IdleProbabilityThreshold: 0.7, IdleStrategy: config.StrategyRecency,
		ReflectionAt: "03:00", BriefingAt: "08:00", Heartbeat: time.Hour,
	}
	e, err := app.Open(cfg, nil, app.Overrides{Client: fake, Repo: repo})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	return NewHandlers(Engine{
		Orchestrator: e.Orchestrator,
		Emotions:     e.Emotions,
		Memory:       e.Memory,
		LTM:          e.LTM,
	}, nil), repo
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestChat(t *testing.T) {
	h, _ := newTestHandlers(t)

	res, err := h.Chat(context.Background(), callRequest("chat", map[string]any{
		"conversation_id": "conv-1",
		"message":         "hi",
		"mode":            "angel",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		Messages []string        `json:"messages"`
		Replies  []models.Reply  `json:"replies"`
		Mode     models.Mode     `json:"mode"`
		Emotion  json.RawMessage `json:"emotion"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, []string{"hello, friend"}, out.Messages)
	assert.Equal(t, models.ModeAngel, out.Mode)
	assert.Contains(t, string(out.Emotion), `"affection":22`)
}

func TestChat_Validation(t *testing.T) {
	h, _ := newTestHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing conversation", map[string]any{"message": "hi"}, "conversation_id"},
		{"bad mode", map[string]any{"conversation_id": "c", "message": "hi", "mode": "chorus"}, "mode"},
		{"empty turn", map[string]any{"conversation_id": "c"}, "message or attachments"},
		{"bad attachment", map[string]any{"conversation_id": "c", "attachments": []any{map[string]any{"name": "x", "data": "%%%"}}}, "base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.Chat(ctx, callRequest("chat", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestChat_ImageAttachment(t *testing.T) {
	h, _ := newTestHandlers(t)

	res, err := h.Chat(context.Background(), callRequest("chat", map[string]any{
		"conversation_id": "conv-1",
		"attachments": []any{map[string]any{
			"name":      "cat.png",
			"mime_type": "image/png",
			"data":      base64.StdEncoding.EncodeToString([]byte("png")),
		}},
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), "what now")
}

func TestGetState(t *testing.T) {
	h, repo := newTestHandlers(t)

	res, err := h.GetState(context.Background(), callRequest("get_state", map[string]any{"conversation_id": "fresh"}))
	require.NoError(t, err)

	var snap struct {
		State models.RelationshipState `json:"state"`
		Rules map[string]models.Rules  `json:"rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &snap))
	assert.Equal(t, models.DefaultAffection, snap.State.Demon.Affection)
	assert.Contains(t, snap.Rules, "angel")
	assert.NotNil(t, repo.GetRelationship(context.Background(), "fresh"), "get_state creates the default row")
}

func TestRecallFacts(t *testing.T) {
	h, repo := newTestHandlers(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveFact(ctx, "conv-1", "pet", "[DEMON] has a dog", models.ScopeUser))

	res, err := h.RecallFacts(ctx, callRequest("recall_facts", map[string]any{"conversation_id": "conv-1"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "has a dog")
	assert.Contains(t, text, "About the user:")

	res, err = h.RecallFacts(ctx, callRequest("recall_facts", map[string]any{"conversation_id": "nobody"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"facts":[]`)
}

func TestListMemories(t *testing.T) {
	h, repo := newTestHandlers(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.CreateMemory(ctx, &models.EpisodicMemory{
			ConversationID: "conv-1",
			Type:           models.MemoryExperience,
			Trigger:        "t", Action: "a", Result: "r",
			Importance: 0.5,
		})
		require.NoError(t, err)
	}

	res, err := h.ListMemories(ctx, callRequest("list_memories", map[string]any{"conversation_id": "conv-1", "limit": 2}))
	require.NoError(t, err)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, 2, out.Count)

	res, err = h.ListMemories(ctx, callRequest("list_memories", map[string]any{"limit": 0}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRegisterTools(t *testing.T) {
	h, _ := newTestHandlers(t)
	server := NewServer("test")
	got := RegisterTools(server, h.engine, nil)
	require.NotNil(t, got)

	resp := server.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"chat", "get_state", "recall_facts", "list_memories"} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}

func TestOutbox_NoClients(t *testing.T) {
	server := NewServer("test")
	assert.NotPanics(t, func() {
		Outbox(server)(context.Background(), "conv-1", []models.Reply{{Speaker: models.Demon, Content: "psst"}})
	})
}

func TestChat_RestartHook(t *testing.T) {
	repo, err := sqlite.NewRepositoryInMemory()
	require.NoError(t, err)
	fake := llmtest.New(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return llmtest.Text("brb [[SYSTEM_RESTART]]"), nil
	})
	cfg := &config.Config{
		ChatModel: "chat", FastModel: "fast", MaxToolSteps: 5, HistoryCap: 60, ContextWindow: 20,
		VectorThreshold: 0.8, RestartMarker: "[[SYSTEM_RESTART]]", IdleAfter: time.Hour,
		IdleProbabilityThreshold: 0.7, IdleStrategy: config.StrategyRecency,
		ReflectionAt: "03:00", BriefingAt: "08:00", Heartbeat: time.Hour,
	}
	e, err := app.Open(cfg, nil, app.Overrides{Client: fake, Repo: repo})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	restarted := false
	h := NewHandlers(Engine{
		Orchestrator: e.Orchestrator,
		Emotions:     e.Emotions,
		Memory:       e.Memory,
		LTM:          e.LTM,
		OnRestart:    func() { restarted = true },
	}, nil)

	res, err := h.Chat(context.Background(), callRequest("chat", map[string]any{"conversation_id": "c", "message": "restart please"}))
	require.NoError(t, err)
	assert.True(t, restarted)
	assert.Contains(t, resultText(t, res), `"messages":["brb"]`)
	assert.Contains(t, resultText(t, res), `"should_restart":true`)
}
