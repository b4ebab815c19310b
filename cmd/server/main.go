// ABOUTME: Standalone duet MCP server with stdio transport
// ABOUTME: Wires the engine from the environment and exits 75 when a persona asks for a restart
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/mcp"
	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	version     = "0.1.0"
	exitRestart = 75
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (for API keys)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	server := mcp.NewServer(version)
	engine, err := app.Open(cfg, logger, app.Overrides{Outbox: mcp.Outbox(server)})
	if err != nil {
		logger.Error("failed to start duet", zap.Error(err))
		return 1
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start background loops", zap.Error(err))
		_ = engine.Close(context.Background())
		return 1
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()
	logger.Info("duet MCP server starting on stdio")

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-restart:
		logger.Info("restart requested")
		code = exitRestart
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			code = 1
		}
	}

	if err := engine.Close(context.Background()); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	return code
}
