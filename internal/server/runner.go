package server

import (
	"context"

	"github.com/stellarlink/storygen/internal/dispatcher"
	"github.com/stellarlink/storygen/internal/store"
	"github.com/stellarlink/storygen/internal/workflow"
)

// WorkflowRunner executes queued runs against the workflow engine and
// records outcomes in the run store.
type WorkflowRunner struct {
	engine *workflow.Engine
	store  *store.Store
}

// NewWorkflowRunner creates a dispatcher runner backed by the workflow engine
func NewWorkflowRunner(engine *workflow.Engine, s *store.Store) *WorkflowRunner {
	return &WorkflowRunner{engine: engine, store: s}
}

// Execute implements dispatcher.Runner. Only transient tracker failures are
// reported as retryable; everything else either succeeded or is permanent.
func (r *WorkflowRunner) Execute(ctx context.Context, job *dispatcher.Job) error {
	r.store.UpdateStatus(job.RunID, store.StatusRunning)

	outcome := r.engine.Run(ctx, workflow.RunRequest{
		RunID:         job.RunID,
		ItemID:        job.ItemID,
		MaxIterations: job.MaxIterations,
	})

	r.store.SetOutcome(job.RunID, outcome.Iterations, outcome.FinalScore, outcome.AttachmentCreated, outcome.ErrorNote)

	if outcome.State == workflow.StateFailed {
		r.store.UpdateStatus(job.RunID, store.StatusFailed)
		if outcome.Transient {
			return &transientRunError{note: outcome.ErrorNote}
		}
		return dispatcher.Permanent(outcome.ErrorNote)
	}

	r.store.UpdateStatus(job.RunID, store.StatusCompleted)
	return nil
}

type transientRunError struct {
	note string
}

func (e *transientRunError) Error() string {
	return e.note
}
