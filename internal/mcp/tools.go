// ABOUTME: MCP tool definitions and registration for the duet server
// ABOUTME: Exposes chat, relationship state, facts, and episodic memories over MCP
package mcp

import (
	"github.com/harper/duet/internal/agent"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// ServerName is reported to MCP clients
const ServerName = "Duet"

// NewServer creates an MCP server with tool capabilities
func NewServer(version string) *mcpserver.MCPServer {
	return mcpserver.NewMCPServer(ServerName, version, mcpserver.WithToolCapabilities(false))
}

// Engine is what the tools drive
type Engine struct {
	Orchestrator *agent.Orchestrator
	Emotions     *core.EmotionEngine
	Memory       *core.PersonaMemory
	LTM          *core.LongTermMemory

	// OnRestart is called after a turn whose reply asked for a restart
	OnRestart func()
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, engine Engine, logger *zap.Logger) *Handlers {
	handlers := NewHandlers(engine, logger)

	modes := make([]string, 0, len(models.Modes))
	for _, m := range models.Modes {
		modes = append(modes, string(m))
	}

	// 1. chat - one user turn
	server.AddTool(mcp.Tool{
		Name:        "chat",
		Description: "Send a message to the demon and angel personas and get their replies. Replies while a previous message is still being processed are a busy notice.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable id of the conversation (one per user or chat)",
				},
				"message": map[string]interface{}{
					"type":        "string",
					"description": "What the user says",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        modes,
					"description": "Who answers: a single persona, one answering and the other reacting, or the group",
					"default":     string(models.ModeDemon),
				},
				"attachments": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":      map[string]interface{}{"type": "string"},
							"mime_type": map[string]interface{}{"type": "string"},
							"data":      map[string]interface{}{"type": "string", "description": "base64 file contents"},
						},
					},
					"description": "Optional files or images sent with the message",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.Chat)

	// 2. get_state - relationship numbers and rules
	server.AddTool(mcp.Tool{
		Name:        "get_state",
		Description: "Get how each persona currently feels about the user: affection, trust, mood, and the behaviour rules they imply.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to inspect",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.GetState)

	// 3. recall_facts - persona memory
	server.AddTool(mcp.Tool{
		Name:        "recall_facts",
		Description: "List the facts the personas remember about the user, themselves, and their shared history.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to inspect",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.RecallFacts)

	// 4. list_memories - episodic long-term memory
	server.AddTool(mcp.Tool{
		Name:        "list_memories",
		Description: "List episodic long-term memories, most recent first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one conversation",
				},
				"type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(models.MemoryExperience), string(models.MemoryToolUse), string(models.MemoryConversation), string(models.MemoryReflection)},
					"description": "Restrict to one memory type",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of memories to return (default: 20)",
					"default":     defaultMemoryLimit,
				},
			},
		},
	}, handlers.ListMemories)

	return handlers
}
