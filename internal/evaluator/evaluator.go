package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/stellarlink/storygen/internal/llm"
	"github.com/stellarlink/storygen/internal/prompt"
	"github.com/stellarlink/storygen/internal/tracker"
)

// Issue is a problem the reviewer model found in the generated code.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Suggestion is an actionable improvement proposed by the reviewer model.
type Suggestion struct {
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

// Result is one evaluation of a generation attempt. Immutable once created.
type Result struct {
	Score          float64
	MeetsThreshold bool
	Assessment     string
	Issues         []Issue
	Suggestions    []Suggestion
	Criteria       map[string]float64

	// ParseWarning is set when the result was synthesized from an
	// unparseable evaluation response and the score defaulted to zero.
	ParseWarning bool
}

// ParseError marks an evaluation response that could not be parsed into the
// expected structure. The control loop downgrades it to a zero-score result.
type ParseError struct {
	msg string
	err error
}

func (e *ParseError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// NewParseError creates a ParseError with the given message.
func NewParseError(msg string) *ParseError {
	return &ParseError{msg: msg}
}

// IsParseError reports whether err originated from a malformed evaluation response.
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// Evaluator scores generated code against a work item via the completion client
type Evaluator struct {
	client    llm.Client
	threshold float64
}

// New creates an evaluator with the acceptance threshold (percentage)
func New(client llm.Client, threshold float64) *Evaluator {
	return &Evaluator{client: client, threshold: threshold}
}

// Evaluate asks the reviewer model to score code against the work item and
// parses the structured response. The meets-threshold flag is computed
// locally from the parsed score; a score exactly equal to the threshold
// counts as meeting it.
func (e *Evaluator) Evaluate(ctx context.Context, code string, item *tracker.WorkItem) (*Result, error) {
	log.Printf("[Evaluator] Evaluating generated code for %s", item.ID)

	p, err := prompt.BuildEvaluation(item, code)
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation prompt: %w", err)
	}

	raw, err := e.client.Complete(ctx, llm.Request{System: p.System, User: p.User})
	if err != nil {
		// Provider errors and timeouts are scored zero by the control
		// loop, the same as an unparseable response. Iterations permitting,
		// the run regenerates instead of aborting.
		return nil, &ParseError{msg: "evaluation service error", err: err}
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Score:          parsed.MatchScore,
		MeetsThreshold: parsed.MatchScore >= e.threshold,
		Assessment:     parsed.Assessment,
		Issues:         parsed.Issues,
		Suggestions:    parsed.Suggestions,
		Criteria:       parsed.Criteria,
	}

	log.Printf("[Evaluator] Evaluation complete for %s: score %.1f%%, meets threshold (%.1f%%): %v",
		item.ID, result.Score, e.threshold, result.MeetsThreshold)

	return result, nil
}

// ZeroResult builds the zero-score stand-in used when an evaluation response
// cannot be parsed.
func ZeroResult(reason string) *Result {
	return &Result{
		Score:          0,
		MeetsThreshold: false,
		Assessment:     "Evaluation response could not be parsed",
		Issues: []Issue{
			{Severity: "high", Description: reason},
		},
		ParseWarning: true,
	}
}
