package tracker

import (
	"context"
	"fmt"
)

// Config contains tracker backend configuration
type Config struct {
	// Backend name: "rally" or "github"
	Name string

	// Rally configuration
	RallyServer       string
	RallyAPIKey       string
	RallyWorkspaceRef string

	// GitHub configuration. Either a token or App credentials.
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string
	GitHubRepo       string
}

// New creates a tracker backend based on configuration
// This is a factory function that eliminates if-else branches
func New(cfg *Config) (Tracker, error) {
	switch cfg.Name {
	case "rally":
		if cfg.RallyAPIKey == "" {
			return nil, fmt.Errorf("rally: RALLY_API_KEY is required")
		}
		if cfg.RallyWorkspaceRef == "" {
			return nil, fmt.Errorf("rally: RALLY_WORKSPACE_REF is required")
		}
		return NewRallyClient(cfg.RallyServer, cfg.RallyAPIKey, cfg.RallyWorkspaceRef), nil

	case "github":
		token := cfg.GitHubToken
		if token == "" {
			if cfg.GitHubAppID == "" || cfg.GitHubPrivateKey == "" {
				return nil, fmt.Errorf("github: GITHUB_TOKEN or GITHUB_APP_ID + GITHUB_PRIVATE_KEY is required")
			}
			auth := &AppAuth{AppID: cfg.GitHubAppID, PrivateKey: cfg.GitHubPrivateKey}
			installation, err := auth.GetInstallationToken(context.Background(), cfg.GitHubRepo)
			if err != nil {
				return nil, fmt.Errorf("github: failed to get installation token: %w", err)
			}
			token = installation.Token
		}
		return NewGitHubClient(token, cfg.GitHubRepo)

	default:
		return nil, fmt.Errorf("unknown tracker: %s (supported: rally, github)", cfg.Name)
	}
}
