package llm

import "context"

// Request is a single system+user completion request.
type Request struct {
	System string
	User   string
}

// Client abstracts the completion provider so the generator and evaluator
// can be tested without network calls.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Settings carries the provider configuration for concrete clients.
type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}
