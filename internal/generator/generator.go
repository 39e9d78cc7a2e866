package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlink/storygen/internal/llm"
	"github.com/stellarlink/storygen/internal/prompt"
	"github.com/stellarlink/storygen/internal/tracker"
)

// Attempt is one code generation pass. Attempts are immutable; a retry
// produces a new Attempt rather than mutating the previous one.
type Attempt struct {
	// Iteration is 1-based.
	Iteration int
	Code      string

	// Feedback is the evaluation feedback this attempt was generated
	// against, empty on the first iteration.
	Feedback string
}

// Error marks a generation failure (provider error or empty response).
// The control loop decides whether iterations remain; the generator never
// retries internally.
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// IsGenerationError reports whether err originated from a generation failure.
func IsGenerationError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Generator produces code for a work item via the completion client
type Generator struct {
	client   llm.Client
	language string
}

// New creates a generator targeting the given language
func New(client llm.Client, language string) *Generator {
	return &Generator{client: client, language: language}
}

// Generate builds the generation prompt and forwards it to the completion
// client. feedback carries the most recent evaluation feedback on retries.
func (g *Generator) Generate(ctx context.Context, item *tracker.WorkItem, iteration int, feedback string) (*Attempt, error) {
	log.Printf("[Generator] Generating code for %s (iteration %d)", item.ID, iteration)

	p, err := prompt.BuildGeneration(item, g.language, feedback)
	if err != nil {
		return nil, &Error{msg: "failed to build generation prompt", err: err}
	}

	raw, err := g.client.Complete(ctx, llm.Request{System: p.System, User: p.User})
	if err != nil {
		return nil, &Error{msg: "generation service error", err: err}
	}

	code := stripCodeFence(raw)
	if strings.TrimSpace(code) == "" {
		return nil, &Error{msg: "generation service returned an empty response"}
	}

	log.Printf("[Generator] Code generated for %s (%d characters)", item.ID, len(code))

	return &Attempt{
		Iteration: iteration,
		Code:      code,
		Feedback:  feedback,
	}, nil
}

// stripCodeFence removes a single outer markdown code fence if the model
// wrapped its whole response in one.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return trimmed
	}

	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
