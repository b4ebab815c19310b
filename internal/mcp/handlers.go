// ABOUTME: MCP tool handler implementations for the duet server
// ABOUTME: Translates tool calls into orchestrator turns and read-only lookups
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/harper/duet/internal/agent"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// ProactiveMethod is the notification carrying unsolicited idle-chat replies
const ProactiveMethod = "notifications/duet/proactive"

const (
	defaultMemoryLimit = 20
	maxMemoryLimit     = 200
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	engine Engine
	logger *zap.Logger
}

// NewHandlers creates handlers over engine
func NewHandlers(engine Engine, logger *zap.Logger) *Handlers {
	logger = logging.OrNop(logger)
	return &Handlers{engine: engine, logger: logger.With(zap.String("component", "mcp"))}
}

// Chat handles the chat tool
func (h *Handlers) Chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}
	message := request.GetString("message", "")

	mode, err := models.ParseMode(request.GetString("mode", string(models.ModeDemon)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attachments, err := parseAttachments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if message == "" && len(attachments) == 0 {
		return mcp.NewToolResultError("message or attachments are required"), nil
	}

	result, err := h.engine.Orchestrator.ProcessTurn(ctx, conversationID, message, attachments, mode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}
	if result.ShouldRestart {
		h.logger.Info("restart requested by persona", zap.String("conversation_id", conversationID))
		if h.engine.OnRestart != nil {
			h.engine.OnRestart()
		}
	}
	return jsonResult(result)
}

// GetState handles the get_state tool
func (h *Handlers) GetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	snap, err := h.engine.Emotions.GetState(ctx, conversationID)
	if err != nil {
		h.logger.Warn("relationship state not persisted", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return jsonResult(snap)
}

// RecallFacts handles the recall_facts tool
func (h *Handlers) RecallFacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	rec := h.engine.Memory.Recall(ctx, conversationID)
	if rec.Facts == nil {
		rec.Facts = []models.Fact{}
	}
	return jsonResult(rec)
}

// ListMemories handles the list_memories tool
func (h *Handlers) ListMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultMemoryLimit)
	if limit <= 0 || limit > maxMemoryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxMemoryLimit)), nil
	}

	memories := h.engine.LTM.Retrieve(ctx, models.MemoryFilter{
		ConversationID: request.GetString("conversation_id", ""),
		Type:           models.MemoryType(request.GetString("type", "")),
		Limit:          limit,
	})
	if memories == nil {
		memories = []models.EpisodicMemory{}
	}
	return jsonResult(map[string]interface{}{
		"memories": memories,
		"count":    len(memories),
	})
}

// Outbox delivers idle-chat replies to every connected client as a notification
func Outbox(server *mcpserver.MCPServer) agent.Outbox {
	return func(ctx context.Context, conversationID string, replies []models.Reply) {
		server.SendNotificationToAllClients(ProactiveMethod, map[string]any{
			"conversation_id": conversationID,
			"replies":         replies,
		})
	}
}

func parseAttachments(request mcp.CallToolRequest) ([]models.Attachment, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, exists := args["attachments"]
	if !exists || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("attachments must be an array")
	}

	out := make([]models.Attachment, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("attachment %d must be an object", i)
		}
		name, _ := obj["name"].(string)
		mimeType, _ := obj["mime_type"].(string)
		encoded, _ := obj["data"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: data is not valid base64", i)
		}
		out = append(out, models.Attachment{Name: name, MIMEType: mimeType, Data: data})
	}
	return out, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
