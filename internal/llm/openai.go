package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// completionTimeout bounds a single completion call.
const completionTimeout = 5 * time.Minute

// OpenAIClient implements Client using the official openai-go SDK
// (chat completions).
type OpenAIClient struct {
	model       string
	temperature float64
	opts        []option.RequestOption
}

// NewOpenAIClient creates an OpenAI-backed completion client
func NewOpenAIClient(cfg Settings) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: OPENAI_API_KEY is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		opts:        opts,
	}, nil
}

// Complete sends a system+user prompt pair and returns the raw completion text
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	client := openai.NewClient(c.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}

	return resp.Choices[0].Message.Content, nil
}
