package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the storygen workflow
type Config struct {
	// Tracker selection: "rally" or "github"
	Tracker string

	// Rally settings
	RallyServer       string
	RallyAPIKey       string
	RallyWorkspaceRef string

	// GitHub settings (github tracker only)
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string
	GitHubRepo       string

	// OpenAI settings
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAITemperature float64

	// Workflow settings
	MaxIterations       int
	EvaluationThreshold float64

	// File settings
	OutputDirectory string
	TargetLanguage  string

	// Server settings (serve mode)
	Port                int
	DispatcherWorkers   int
	DispatcherQueueSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := LoadLenient()

	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadLenient reads the environment without requiring the credential keys.
// Used by the config check so an incomplete environment can still be reported.
func LoadLenient() *Config {
	return &Config{
		Tracker:             getEnv("TRACKER", "rally"),
		RallyServer:         getEnv("RALLY_SERVER", "https://rally1.rallydev.com"),
		RallyAPIKey:         os.Getenv("RALLY_API_KEY"),
		RallyWorkspaceRef:   os.Getenv("RALLY_WORKSPACE_REF"),
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		GitHubAppID:         os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:    normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubRepo:          os.Getenv("GITHUB_REPO"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4-turbo-preview"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAITemperature:   getEnvFloat("OPENAI_TEMPERATURE", 0.1),
		MaxIterations:       getEnvInt("MAX_ITERATIONS", 3),
		EvaluationThreshold: getEnvFloat("EVALUATION_THRESHOLD", 70.0),
		OutputDirectory:     getEnv("OUTPUT_DIRECTORY", os.TempDir()),
		TargetLanguage:      getEnv("TARGET_LANGUAGE", "python"),
		Port:                getEnvInt("PORT", 8000),
		DispatcherWorkers:   getEnvInt("DISPATCHER_WORKERS", 2),
		DispatcherQueueSize: getEnvInt("DISPATCHER_QUEUE_SIZE", 8),
	}
}

// Missing returns the required configuration keys that are not set for the
// selected tracker.
func (c *Config) Missing() []string {
	var missing []string

	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	switch c.Tracker {
	case "rally":
		if c.RallyAPIKey == "" {
			missing = append(missing, "RALLY_API_KEY")
		}
		if c.RallyWorkspaceRef == "" {
			missing = append(missing, "RALLY_WORKSPACE_REF")
		}
	case "github":
		if c.GitHubRepo == "" {
			missing = append(missing, "GITHUB_REPO")
		}
		if c.GitHubToken == "" && (c.GitHubAppID == "" || c.GitHubPrivateKey == "") {
			missing = append(missing, "GITHUB_TOKEN (or GITHUB_APP_ID + GITHUB_PRIVATE_KEY)")
		}
	}

	return missing
}

// validate checks value ranges after the presence check passed
func (c *Config) validate() error {
	if c.Tracker != "rally" && c.Tracker != "github" {
		return fmt.Errorf("invalid tracker: %s (must be 'rally' or 'github')", c.Tracker)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MAX_ITERATIONS must be greater than 0")
	}
	if c.EvaluationThreshold < 0 || c.EvaluationThreshold > 100 {
		return fmt.Errorf("EVALUATION_THRESHOLD must be between 0 and 100")
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2")
	}
	return nil
}

// Status renders a human-readable configuration report for the config check.
func (c *Config) Status() string {
	var b strings.Builder

	set := func(v string) string {
		if v == "" {
			return "missing"
		}
		return "set"
	}

	b.WriteString("Configuration status:\n")
	fmt.Fprintf(&b, "  Tracker:              %s\n", c.Tracker)
	if c.Tracker == "rally" {
		fmt.Fprintf(&b, "  Rally server:         %s\n", c.RallyServer)
		fmt.Fprintf(&b, "  Rally API key:        %s\n", set(c.RallyAPIKey))
		fmt.Fprintf(&b, "  Rally workspace:      %s\n", set(c.RallyWorkspaceRef))
	} else {
		fmt.Fprintf(&b, "  GitHub repo:          %s\n", c.GitHubRepo)
		fmt.Fprintf(&b, "  GitHub token:         %s\n", set(c.GitHubToken))
		fmt.Fprintf(&b, "  GitHub app ID:        %s\n", set(c.GitHubAppID))
	}
	fmt.Fprintf(&b, "  OpenAI API key:       %s\n", set(c.OpenAIAPIKey))
	fmt.Fprintf(&b, "  OpenAI model:         %s\n", c.OpenAIModel)
	fmt.Fprintf(&b, "  Temperature:          %.2f\n", c.OpenAITemperature)
	fmt.Fprintf(&b, "  Max iterations:       %d\n", c.MaxIterations)
	fmt.Fprintf(&b, "  Evaluation threshold: %.1f%%\n", c.EvaluationThreshold)
	fmt.Fprintf(&b, "  Target language:      %s\n", c.TargetLanguage)
	fmt.Fprintf(&b, "  Output directory:     %s\n", c.OutputDirectory)

	if missing := c.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, "\nMissing configuration: %s\n", strings.Join(missing, ", "))
	} else {
		b.WriteString("\nAll required configuration is set.\n")
	}

	return b.String()
}

func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.TrimPrefix(trimmed, "\"")
		trimmed = strings.TrimSuffix(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimPrefix(trimmed, "'")
		trimmed = strings.TrimSuffix(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
