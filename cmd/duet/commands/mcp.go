// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Exposes the duet personas to LLM agents over stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveStdio is swapped in tests
var serveStdio = func(server *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(server)
}

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs Duet as an MCP (Model Context Protocol) server on stdio. Agents can
chat with the personas, read their feelings, and browse their memories.
Idle chats arrive as notifications/duet/proactive notifications.

When a persona asks for a restart the server exits with status 75 so a
supervisor can bring it back.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  duet mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "duet": {
  #       "command": "duet",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	server := mcp.NewServer(versionInfo.Version)
	engine, err := openEngine(cfg, logger, app.Overrides{Outbox: mcp.Outbox(server)})
	if err != nil {
		return fmt.Errorf("failed to start duet: %w", err)
	}

	restart := make(chan struct{})
	var once sync.Once
	mcp.RegisterTools(server, mcp.Engine{
		Orchestrator: engine.Orchestrator,
		Emotions:     engine.Emotions,
		Memory:       engine.Memory,
		LTM:          engine.LTM,
		OnRestart:    func() { once.Do(func() { close(restart) }) },
	}, logger)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		_ = engine.Close(context.Background())
		return err
	}
	logger.Info("duet MCP server starting on stdio", zap.String("version", versionInfo.Version))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- serveStdio(server)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, gracefully shutting down")
	case <-restart:
		logger.Info("restart requested, shutting down")
		runErr = ErrRestartRequested
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	// Waits for background memory writes before closing storage
	if err := engine.Close(context.Background()); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")

	return runErr
}
