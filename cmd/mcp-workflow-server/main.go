package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stellarlink/storygen/internal/config"
)

func main() {
	_ = godotenv.Load()

	// 1. Validate configuration before accepting any tool calls
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MCP Workflow Server] Invalid configuration: %v", err)
	}

	log.Println("[MCP Workflow Server] Starting storygen workflow MCP server v1.0.0")
	log.Printf("[MCP Workflow Server] Tracker: %s, model: %s", cfg.Tracker, cfg.OpenAIModel)

	// 2. Create MCP server
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "storygen-workflow-server",
		Version: "v1.0.0",
	}, nil)

	// 3. Register run_workflow tool
	handler := NewHandler(cfg)
	tool := &mcp.Tool{
		Name:        "run_workflow",
		Description: "Fetch a tracker work item, generate code for it with iterative evaluation, and attach the result back to the item",
	}
	mcp.AddTool(server, tool, handler.HandleRunWorkflow)
	log.Println("[MCP Workflow Server] Registered tool: run_workflow")

	// 4. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Workflow Server] Received shutdown signal")
		cancel()
	}()

	// 5. Start server with stdio transport
	log.Println("[MCP Workflow Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Workflow Server] Server error: %v", err)
	}
	log.Println("[MCP Workflow Server] Server stopped gracefully")
}
