// Package app wires the workflow engine from configuration. It is shared by
// the CLI and the MCP server entrypoints.
package app

import (
	"fmt"
	"log"

	"github.com/stellarlink/storygen/internal/attach"
	"github.com/stellarlink/storygen/internal/config"
	"github.com/stellarlink/storygen/internal/evaluator"
	"github.com/stellarlink/storygen/internal/generator"
	"github.com/stellarlink/storygen/internal/llm"
	"github.com/stellarlink/storygen/internal/tracker"
	"github.com/stellarlink/storygen/internal/workflow"
)

// BuildEngine constructs the tracker, completion client and workflow
// collaborators from configuration.
func BuildEngine(cfg *config.Config) (*workflow.Engine, error) {
	trk, err := tracker.New(&tracker.Config{
		Name:              cfg.Tracker,
		RallyServer:       cfg.RallyServer,
		RallyAPIKey:       cfg.RallyAPIKey,
		RallyWorkspaceRef: cfg.RallyWorkspaceRef,
		GitHubToken:       cfg.GitHubToken,
		GitHubAppID:       cfg.GitHubAppID,
		GitHubPrivateKey:  cfg.GitHubPrivateKey,
		GitHubRepo:        cfg.GitHubRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracker: %w", err)
	}
	log.Printf("Tracker backend: %s", trk.Name())

	client, err := llm.NewOpenAIClient(llm.Settings{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	gen := generator.New(client, cfg.TargetLanguage)
	eval := evaluator.New(client, cfg.EvaluationThreshold)
	writer := attach.NewWriter(trk, cfg.OutputDirectory, cfg.TargetLanguage)

	return workflow.New(trk, gen, eval, writer, workflow.Config{
		Threshold:     cfg.EvaluationThreshold,
		MaxIterations: cfg.MaxIterations,
	}), nil
}
