package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlink/storygen/internal/llm"
	"github.com/stellarlink/storygen/internal/tracker"
)

type fakeClient struct {
	response string
	err      error
	lastReq  llm.Request
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.lastReq = req
	return f.response, f.err
}

func evalItem() *tracker.WorkItem {
	return &tracker.WorkItem{
		ID:                 "US42",
		Title:              "Parse CSV uploads",
		Description:        "Accept CSV files and store rows",
		AcceptanceCriteria: "Rejects malformed rows",
	}
}

func TestEvaluateThresholdComparison(t *testing.T) {
	tests := []struct {
		name      string
		score     string
		threshold float64
		wantMeets bool
	}{
		{name: "above threshold", score: "85", threshold: 70, wantMeets: true},
		{name: "equal to threshold meets it", score: "70", threshold: 70, wantMeets: true},
		{name: "just below threshold", score: "69.9", threshold: 70, wantMeets: false},
		{name: "zero score", score: "0", threshold: 70, wantMeets: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{response: `{"match_score": ` + tt.score + `, "assessment": "x"}`}
			e := New(client, tt.threshold)

			result, err := e.Evaluate(context.Background(), "def f(): pass", evalItem())
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if result.MeetsThreshold != tt.wantMeets {
				t.Errorf("MeetsThreshold = %v, want %v (score %s, threshold %.1f)",
					result.MeetsThreshold, tt.wantMeets, tt.score, tt.threshold)
			}
		})
	}
}

func TestEvaluateServiceErrorIsParseError(t *testing.T) {
	// Completion failures downgrade the same way as malformed responses so
	// the control loop scores the iteration zero instead of aborting.
	tests := []struct {
		name string
		err  error
	}{
		{"provider error", errors.New("rate limited")},
		{"timeout", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{err: tt.err}
			e := New(client, 70)

			_, err := e.Evaluate(context.Background(), "code", evalItem())
			if err == nil {
				t.Fatal("Evaluate succeeded, want error")
			}
			if !IsParseError(err) {
				t.Fatalf("err = %v, want ParseError", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want wrapped %v", err, tt.err)
			}
		})
	}
}

func TestEvaluateMalformedResponseReturnsParseError(t *testing.T) {
	client := &fakeClient{response: "I refuse to answer in JSON."}
	e := New(client, 70)

	_, err := e.Evaluate(context.Background(), "code", evalItem())
	if !IsParseError(err) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestEvaluatePromptIncludesWorkItemAndCode(t *testing.T) {
	client := &fakeClient{response: `{"match_score": 50}`}
	e := New(client, 70)

	code := "def unique_marker(): pass"
	if _, err := e.Evaluate(context.Background(), code, evalItem()); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	for _, want := range []string{"Parse CSV uploads", "Rejects malformed rows", code} {
		if !strings.Contains(client.lastReq.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if client.lastReq.System == "" {
		t.Error("system prompt is empty")
	}
}

func TestZeroResult(t *testing.T) {
	result := ZeroResult("could not parse")

	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if result.MeetsThreshold {
		t.Error("MeetsThreshold = true, want false")
	}
	if !result.ParseWarning {
		t.Error("ParseWarning = false, want true")
	}
	if len(result.Issues) != 1 || result.Issues[0].Description != "could not parse" {
		t.Errorf("Issues = %+v, want the parse reason", result.Issues)
	}
}
