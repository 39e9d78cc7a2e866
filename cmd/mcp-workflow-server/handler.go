package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stellarlink/storygen/internal/app"
	"github.com/stellarlink/storygen/internal/config"
	"github.com/stellarlink/storygen/internal/workflow"
)

// RunWorkflowParams defines the input parameters for the run_workflow tool
type RunWorkflowParams struct {
	ItemID        string `json:"item_id" jsonschema:"Work item identifier, e.g. US1234 or an issue number"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Optional override for the iteration cap"`
}

// Handler holds the validated configuration shared by all tool calls
type Handler struct {
	cfg *config.Config
}

func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// HandleRunWorkflow handles the run_workflow tool call. Each call builds a
// fresh engine so a failed tracker or model setup never poisons later calls.
func (h *Handler) HandleRunWorkflow(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params RunWorkflowParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Workflow Server] Received run_workflow request for %q", params.ItemID)

	if params.ItemID == "" {
		return nil, nil, fmt.Errorf("item_id parameter is required")
	}
	if params.MaxIterations < 0 {
		return nil, nil, fmt.Errorf("max_iterations must not be negative")
	}

	engine, err := app.BuildEngine(h.cfg)
	if err != nil {
		log.Printf("[MCP Workflow Server] Engine setup failed: %v", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
			},
			IsError: true,
		}, nil, nil
	}

	outcome := engine.Run(ctx, workflow.RunRequest{
		ItemID:        params.ItemID,
		MaxIterations: params.MaxIterations,
	})

	body, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode outcome: %w", err)
	}

	if outcome.State == workflow.StateFailed {
		log.Printf("[MCP Workflow Server] Workflow for %s failed: %s", params.ItemID, outcome.ErrorNote)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(body)},
			},
			IsError: true,
		}, nil, nil
	}

	log.Printf("[MCP Workflow Server] Workflow for %s finished with score %.1f after %d iteration(s)",
		params.ItemID, outcome.FinalScore, outcome.Iterations)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(body)},
		},
	}, nil, nil
}
