package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stellarlink/storygen/internal/attach"
	"github.com/stellarlink/storygen/internal/evaluator"
	"github.com/stellarlink/storygen/internal/generator"
	"github.com/stellarlink/storygen/internal/tracker"
)

type fakeFetcher struct {
	item  *tracker.WorkItem
	err   error
	calls int
}

func (f *fakeFetcher) FetchWorkItem(ctx context.Context, id string) (*tracker.WorkItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.item, nil
}

type generateCall struct {
	iteration int
	feedback  string
}

type fakeGenerator struct {
	err   error
	calls []generateCall
}

func (f *fakeGenerator) Generate(ctx context.Context, item *tracker.WorkItem, iteration int, feedback string) (*generator.Attempt, error) {
	f.calls = append(f.calls, generateCall{iteration: iteration, feedback: feedback})
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Attempt{
		Iteration: iteration,
		Code:      fmt.Sprintf("def solution_v%d(): pass", iteration),
		Feedback:  feedback,
	}, nil
}

// fakeEvaluator returns one scripted result (or error) per call, in order.
type fakeEvaluator struct {
	results []*evaluator.Result
	errs    []error
	calls   int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, code string, item *tracker.WorkItem) (*evaluator.Result, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.results) {
		return nil, errors.New("unexpected evaluation call")
	}
	return f.results[idx], nil
}

type fakeWriter struct {
	result *attach.Result
	err    error
	calls  int
}

func (f *fakeWriter) Attach(ctx context.Context, item *tracker.WorkItem, attempt *generator.Attempt, eval *evaluator.Result) (*attach.Result, error) {
	f.calls++
	return f.result, f.err
}

func scored(score float64, threshold float64) *evaluator.Result {
	return &evaluator.Result{
		Score:          score,
		MeetsThreshold: score >= threshold,
		Assessment:     fmt.Sprintf("scored %.0f", score),
	}
}

func testItem() *tracker.WorkItem {
	return &tracker.WorkItem{
		ID:          "US100",
		Ref:         "/hierarchicalrequirement/1",
		Title:       "Sample story",
		Description: "Do the thing",
	}
}

func TestRunIteratesUntilCapAndAttachesBestEffort(t *testing.T) {
	// Three below-threshold scores with a cap of 3: the run still completes
	// and attaches the last attempt.
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{results: []*evaluator.Result{
		scored(40, 70),
		scored(55, 70),
		scored(60, 70),
	}}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Ref: "ref", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if outcome.State != StateDone {
		t.Fatalf("State = %s, want %s", outcome.State, StateDone)
	}
	if outcome.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", outcome.Iterations)
	}
	if outcome.MeetsThreshold {
		t.Error("MeetsThreshold = true, want false")
	}
	if outcome.FinalScore != 60 {
		t.Errorf("FinalScore = %.1f, want 60", outcome.FinalScore)
	}
	if !outcome.AttachmentCreated {
		t.Error("AttachmentCreated = false, want true")
	}
	if writer.calls != 1 {
		t.Errorf("writer calls = %d, want 1", writer.calls)
	}
}

func TestRunStopsOnFirstPassingScore(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{results: []*evaluator.Result{scored(85, 70)}}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US200"})

	if outcome.State != StateDone {
		t.Fatalf("State = %s, want %s", outcome.State, StateDone)
	}
	if outcome.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", outcome.Iterations)
	}
	if !outcome.MeetsThreshold {
		t.Error("MeetsThreshold = false, want true")
	}
	if len(gen.calls) != 1 {
		t.Errorf("generator calls = %d, want 1", len(gen.calls))
	}
}

func TestRunScoreEqualToThresholdMeetsIt(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{results: []*evaluator.Result{scored(70, 70)}}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US300"})

	if !outcome.MeetsThreshold {
		t.Error("MeetsThreshold = false, want true for score == threshold")
	}
	if outcome.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", outcome.Iterations)
	}
}

func TestRunFetchFailureSkipsGeneration(t *testing.T) {
	tests := []struct {
		name          string
		fetchErr      error
		wantNote      string
		wantTransient bool
	}{
		{
			name:     "item not found",
			fetchErr: &tracker.NotFoundError{ID: "US404"},
			wantNote: "item not found",
		},
		{
			name:          "tracker unreachable",
			fetchErr:      &tracker.TransientError{Op: "rally hierarchicalrequirement", Err: errors.New("connection refused")},
			wantNote:      "tracker unreachable",
			wantTransient: true,
		},
		{
			name:     "auth rejected",
			fetchErr: &tracker.AuthError{Backend: "rally", Status: 401},
			wantNote: "fetch failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{err: tt.fetchErr}
			gen := &fakeGenerator{}
			eval := &fakeEvaluator{}
			writer := &fakeWriter{}

			engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
			outcome := engine.Run(context.Background(), RunRequest{ItemID: "US404"})

			if outcome.State != StateFailed {
				t.Fatalf("State = %s, want %s", outcome.State, StateFailed)
			}
			if len(gen.calls) != 0 {
				t.Errorf("generator calls = %d, want 0", len(gen.calls))
			}
			if eval.calls != 0 {
				t.Errorf("evaluator calls = %d, want 0", eval.calls)
			}
			if writer.calls != 0 {
				t.Errorf("writer calls = %d, want 0", writer.calls)
			}
			if outcome.Iterations != 0 {
				t.Errorf("Iterations = %d, want 0", outcome.Iterations)
			}
			if outcome.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v", outcome.Transient, tt.wantTransient)
			}
			if outcome.ErrorNote == "" || !strings.HasPrefix(outcome.ErrorNote, tt.wantNote) {
				t.Errorf("ErrorNote = %q, want prefix %q", outcome.ErrorNote, tt.wantNote)
			}
		})
	}
}

func TestRunGenerationFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	eval := &fakeEvaluator{}
	writer := &fakeWriter{}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if outcome.State != StateFailed {
		t.Fatalf("State = %s, want %s", outcome.State, StateFailed)
	}
	if writer.calls != 0 {
		t.Errorf("writer calls = %d, want 0", writer.calls)
	}
}

func TestRunParseErrorCountsAsZeroScore(t *testing.T) {
	// First evaluation response is unparseable, second passes. The run must
	// not abort; the parse failure iteration scores zero and regenerates.
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{
		errs:    []error{evaluator.NewParseError("bad json")},
		results: []*evaluator.Result{nil, scored(90, 70)},
	}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if outcome.State != StateDone {
		t.Fatalf("State = %s, want %s", outcome.State, StateDone)
	}
	if outcome.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", outcome.Iterations)
	}
	if !outcome.ParseWarning {
		t.Error("ParseWarning = false, want true")
	}
	if outcome.FinalScore != 90 {
		t.Errorf("FinalScore = %.1f, want 90", outcome.FinalScore)
	}
}

func TestRunEvaluationServiceErrorCountsAsZeroScore(t *testing.T) {
	// An evaluation timeout behaves like an unparseable response: the
	// iteration scores zero and the run regenerates instead of aborting.
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{
		errs:    []error{context.DeadlineExceeded},
		results: []*evaluator.Result{nil, scored(90, 70)},
	}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if outcome.State != StateDone {
		t.Fatalf("State = %s, want %s", outcome.State, StateDone)
	}
	if outcome.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", outcome.Iterations)
	}
	if eval.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2", eval.calls)
	}
	if !outcome.ParseWarning {
		t.Error("ParseWarning = false, want true")
	}
	if writer.calls != 1 {
		t.Errorf("writer calls = %d, want 1", writer.calls)
	}
}

func TestRunAttachFailureCompletesWithNote(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{results: []*evaluator.Result{scored(85, 70)}}
	writer := &fakeWriter{
		result: &attach.Result{Path: "/tmp/out.py"},
		err:    &attach.UploadError{Path: "/tmp/out.py", Err: errors.New("rally rejected upload")},
	}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if outcome.State != StateDone {
		t.Fatalf("State = %s, want %s", outcome.State, StateDone)
	}
	if outcome.AttachmentCreated {
		t.Error("AttachmentCreated = true, want false")
	}
	if outcome.AttachmentPath != "/tmp/out.py" {
		t.Errorf("AttachmentPath = %q, want /tmp/out.py", outcome.AttachmentPath)
	}
	if outcome.ErrorNote == "" {
		t.Error("ErrorNote is empty, want upload failure note")
	}
	if !outcome.MeetsThreshold {
		t.Error("MeetsThreshold = false, want true")
	}
}

func TestRunFeedbackCarriesMostRecentEvaluation(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	first := scored(40, 70)
	first.Issues = []evaluator.Issue{{Severity: "high", Description: "missing validation"}}
	first.Suggestions = []evaluator.Suggestion{{Priority: "high", Description: "validate input"}}
	eval := &fakeEvaluator{results: []*evaluator.Result{first, scored(90, 70)}}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	engine.Run(context.Background(), RunRequest{ItemID: "US100"})

	if len(gen.calls) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(gen.calls))
	}
	if gen.calls[0].feedback != "" {
		t.Errorf("first iteration feedback = %q, want empty", gen.calls[0].feedback)
	}
	second := gen.calls[1].feedback
	for _, want := range []string{"40.0%", "missing validation", "validate input"} {
		if !strings.Contains(second, want) {
			t.Errorf("second iteration feedback missing %q:\n%s", want, second)
		}
	}
	if gen.calls[1].iteration != 2 {
		t.Errorf("second iteration number = %d, want 2", gen.calls[1].iteration)
	}
}

func TestRunMaxIterationsOverride(t *testing.T) {
	fetcher := &fakeFetcher{item: testItem()}
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{results: []*evaluator.Result{scored(10, 70)}}
	writer := &fakeWriter{result: &attach.Result{Path: "/tmp/out.py", Uploaded: true}}

	engine := New(fetcher, gen, eval, writer, Config{Threshold: 70, MaxIterations: 3})
	outcome := engine.Run(context.Background(), RunRequest{ItemID: "US100", MaxIterations: 1})

	if outcome.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1 with override", outcome.Iterations)
	}
	if outcome.State != StateDone {
		t.Errorf("State = %s, want %s", outcome.State, StateDone)
	}
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateFetching, false},
		{StateGenerating, false},
		{StateEvaluating, false},
		{StateRegenerating, false},
		{StateAttaching, false},
		{StateDone, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

