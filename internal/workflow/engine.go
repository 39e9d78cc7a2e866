package workflow

import (
	"context"
	"fmt"
	"log"

	"github.com/stellarlink/storygen/internal/attach"
	"github.com/stellarlink/storygen/internal/evaluator"
	"github.com/stellarlink/storygen/internal/generator"
	"github.com/stellarlink/storygen/internal/store"
	"github.com/stellarlink/storygen/internal/tracker"
)

// Fetcher retrieves work items from the tracker
type Fetcher interface {
	FetchWorkItem(ctx context.Context, id string) (*tracker.WorkItem, error)
}

// CodeGenerator produces a generation attempt for a work item
type CodeGenerator interface {
	Generate(ctx context.Context, item *tracker.WorkItem, iteration int, feedback string) (*generator.Attempt, error)
}

// CodeEvaluator scores a generation attempt against the work item
type CodeEvaluator interface {
	Evaluate(ctx context.Context, code string, item *tracker.WorkItem) (*evaluator.Result, error)
}

// AttachmentWriter persists the final code and uploads it to the tracker
type AttachmentWriter interface {
	Attach(ctx context.Context, item *tracker.WorkItem, attempt *generator.Attempt, eval *evaluator.Result) (*attach.Result, error)
}

// Config is the immutable per-engine configuration. It is passed in
// explicitly so concurrent or repeated runs never read ambient process state.
type Config struct {
	// Threshold is the minimum evaluation score (percentage) that accepts
	// generated code without further retries. A score exactly equal to the
	// threshold meets it.
	Threshold float64

	// MaxIterations bounds the generate/evaluate cycles per run.
	MaxIterations int
}

// RunRequest identifies one workflow run.
type RunRequest struct {
	// RunID keys run store updates; empty when no store is attached.
	RunID  string
	ItemID string

	// MaxIterations overrides Config.MaxIterations when positive.
	MaxIterations int
}

// Engine drives one work item through fetch, generate, evaluate and attach.
// The collaborators are injected so the transition policy is testable
// without any external service.
type Engine struct {
	fetcher   Fetcher
	generator CodeGenerator
	evaluator CodeEvaluator
	writer    AttachmentWriter
	cfg       Config
	store     *store.Store
}

// New creates a workflow engine
func New(f Fetcher, g CodeGenerator, e CodeEvaluator, w AttachmentWriter, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	return &Engine{
		fetcher:   f,
		generator: g,
		evaluator: e,
		writer:    w,
		cfg:       cfg,
	}
}

// WithStore attaches a run store that receives per-stage log entries
func (e *Engine) WithStore(s *store.Store) *Engine {
	e.store = s
	return e
}

// runState accumulates one run's data as the FSM advances.
type runState struct {
	req           RunRequest
	maxIterations int

	item    *tracker.WorkItem
	attempt *generator.Attempt
	eval    *evaluator.Result

	// feedback is the most recent evaluation feedback, carried into the
	// next generation pass on regeneration.
	feedback string

	out *Outcome
}

// Run executes the workflow for one work item. It always returns an Outcome;
// unrecoverable errors surface as State Failed with an error note.
func (e *Engine) Run(ctx context.Context, req RunRequest) *Outcome {
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxIterations
	}

	rs := &runState{
		req:           req,
		maxIterations: maxIterations,
		out: &Outcome{
			ItemID: req.ItemID,
			State:  StateFetching,
		},
	}

	e.logf(rs, "info", "Starting workflow for %s (max iterations: %d, threshold: %.1f%%)",
		req.ItemID, maxIterations, e.cfg.Threshold)

	for !rs.out.State.Terminal() {
		switch rs.out.State {
		case StateFetching:
			rs.out.State = e.stepFetch(ctx, rs)
		case StateGenerating, StateRegenerating:
			rs.out.State = e.stepGenerate(ctx, rs)
		case StateEvaluating:
			rs.out.State = e.stepEvaluate(ctx, rs)
		case StateAttaching:
			rs.out.State = e.stepAttach(ctx, rs)
		default:
			rs.out.ErrorNote = fmt.Sprintf("invalid workflow state: %s", rs.out.State)
			rs.out.State = StateFailed
		}
	}

	if rs.out.State == StateDone {
		e.logf(rs, "success", "Workflow completed for %s: score %.1f%%, iterations %d, attachment created: %v",
			req.ItemID, rs.out.FinalScore, rs.out.Iterations, rs.out.AttachmentCreated)
	} else {
		e.logf(rs, "error", "Workflow failed for %s: %s", req.ItemID, rs.out.ErrorNote)
	}

	return rs.out
}

func (e *Engine) stepFetch(ctx context.Context, rs *runState) State {
	e.logf(rs, "info", "Fetching work item %s", rs.req.ItemID)

	item, err := e.fetcher.FetchWorkItem(ctx, rs.req.ItemID)
	if err != nil {
		switch {
		case tracker.IsNotFound(err):
			rs.out.ErrorNote = fmt.Sprintf("item not found: %v", err)
		case tracker.IsTransient(err):
			rs.out.ErrorNote = fmt.Sprintf("tracker unreachable: %v", err)
			rs.out.Transient = true
		default:
			rs.out.ErrorNote = fmt.Sprintf("fetch failed: %v", err)
		}
		return StateFailed
	}

	rs.item = item
	e.logf(rs, "info", "Fetched %s: %s (%d dependencies)", item.ID, item.Title, len(item.Dependencies))
	return StateGenerating
}

func (e *Engine) stepGenerate(ctx context.Context, rs *runState) State {
	iteration := rs.out.Iterations + 1

	attempt, err := e.generator.Generate(ctx, rs.item, iteration, rs.feedback)
	if err != nil {
		rs.out.ErrorNote = fmt.Sprintf("generation service error: %v", err)
		return StateFailed
	}

	rs.attempt = attempt
	rs.out.Iterations = iteration
	e.logf(rs, "info", "Generated code for %s (iteration %d/%d)", rs.item.ID, iteration, rs.maxIterations)
	return StateEvaluating
}

func (e *Engine) stepEvaluate(ctx context.Context, rs *runState) State {
	result, err := e.evaluator.Evaluate(ctx, rs.attempt.Code, rs.item)
	if err != nil {
		// Any evaluation failure, unparseable response or service error
		// alike, counts as a zero score so the loop can still regenerate
		// or finalize.
		e.logf(rs, "error", "Evaluation failed for %s (iteration %d), treating as score 0: %v",
			rs.item.ID, rs.out.Iterations, err)
		result = evaluator.ZeroResult(err.Error())
	}

	rs.eval = result
	rs.out.FinalScore = result.Score
	rs.out.MeetsThreshold = result.MeetsThreshold
	rs.out.FinalCode = rs.attempt.Code
	if result.ParseWarning {
		rs.out.ParseWarning = true
	}

	if result.MeetsThreshold {
		e.logf(rs, "info", "Score %.1f%% meets threshold %.1f%% for %s", result.Score, e.cfg.Threshold, rs.item.ID)
		return StateAttaching
	}

	if rs.out.Iterations >= rs.maxIterations {
		e.logf(rs, "info", "Max iterations (%d) reached for %s, proceeding with current code (score %.1f%%)",
			rs.maxIterations, rs.item.ID, result.Score)
		return StateAttaching
	}

	rs.feedback = formatFeedback(result)
	e.logf(rs, "info", "Score %.1f%% below threshold %.1f%% for %s, regenerating (iteration %d/%d)",
		result.Score, e.cfg.Threshold, rs.item.ID, rs.out.Iterations+1, rs.maxIterations)
	return StateRegenerating
}

func (e *Engine) stepAttach(ctx context.Context, rs *runState) State {
	res, err := e.writer.Attach(ctx, rs.item, rs.attempt, rs.eval)
	if res != nil {
		rs.out.AttachmentPath = res.Path
		rs.out.AttachmentCreated = res.Uploaded
	}
	if err != nil {
		// Upload failure is non-fatal: the run still completes with the
		// generated code and an error note.
		rs.out.ErrorNote = fmt.Sprintf("attachment upload failed: %v", err)
		e.logf(rs, "error", "Attachment upload failed for %s (iteration %d): %v", rs.item.ID, rs.out.Iterations, err)
		return StateDone
	}

	return StateDone
}

// formatFeedback flattens an evaluation result into the feedback block for
// the next generation prompt. Only the most recent evaluation is kept.
func formatFeedback(result *evaluator.Result) string {
	feedback := fmt.Sprintf("- Match score: %.1f%%\n", result.Score)
	if result.Assessment != "" {
		feedback += fmt.Sprintf("- Assessment: %s\n", result.Assessment)
	}
	for _, issue := range result.Issues {
		feedback += fmt.Sprintf("- Issue (%s): %s\n", issue.Severity, issue.Description)
	}
	for _, suggestion := range result.Suggestions {
		feedback += fmt.Sprintf("- Suggestion (%s): %s\n", suggestion.Priority, suggestion.Description)
	}
	return feedback
}

func (e *Engine) logf(rs *runState, level, format string, args ...any) {
	log.Printf("[Workflow] "+format, args...)
	if e.store != nil && rs.req.RunID != "" {
		e.store.AddLog(rs.req.RunID, level, fmt.Sprintf(format, args...))
	}
}
