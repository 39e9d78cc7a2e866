package prompt

import (
	"strings"
	"testing"

	"github.com/stellarlink/storygen/internal/tracker"
)

func sampleItem() *tracker.WorkItem {
	return &tracker.WorkItem{
		ID:                 "US1234",
		Title:              "Implement user authentication",
		Description:        "Users sign in with email and password",
		AcceptanceCriteria: "Passwords are hashed with bcrypt",
		Dependencies: []tracker.Dependency{
			{ID: "US1200", Summary: "User table schema"},
			{ID: "US1201", Summary: "Session middleware"},
		},
	}
}

func TestBuildGeneration(t *testing.T) {
	p, err := BuildGeneration(sampleItem(), "python", "")
	if err != nil {
		t.Fatalf("BuildGeneration failed: %v", err)
	}

	if !strings.Contains(p.System, "python") {
		t.Errorf("system prompt missing language: %q", p.System)
	}

	for _, want := range []string{
		"Implement user authentication",
		"Passwords are hashed with bcrypt",
		"US1200: User table schema",
		"US1201: Session middleware",
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}

	if strings.Contains(p.User, "Previous Evaluation Feedback") {
		t.Error("feedback block rendered without feedback")
	}
}

func TestBuildGenerationWithFeedback(t *testing.T) {
	feedback := "- Match score: 40.0%\n- Issue (high): no password hashing"

	p, err := BuildGeneration(sampleItem(), "python", feedback)
	if err != nil {
		t.Fatalf("BuildGeneration failed: %v", err)
	}

	if !strings.Contains(p.User, "Previous Evaluation Feedback") {
		t.Error("feedback heading missing")
	}
	if !strings.Contains(p.User, "no password hashing") {
		t.Error("feedback content missing")
	}
}

func TestBuildGenerationWithoutDependencies(t *testing.T) {
	item := sampleItem()
	item.Dependencies = nil

	p, err := BuildGeneration(item, "go", "")
	if err != nil {
		t.Fatalf("BuildGeneration failed: %v", err)
	}

	if strings.Contains(p.User, "Dependencies:") {
		t.Error("dependencies block rendered for item without dependencies")
	}
}

func TestBuildEvaluation(t *testing.T) {
	code := "def login(email, password):\n    pass"

	p, err := BuildEvaluation(sampleItem(), code)
	if err != nil {
		t.Fatalf("BuildEvaluation failed: %v", err)
	}

	if !strings.Contains(p.System, "match_score") {
		t.Errorf("system prompt missing JSON contract: %q", p.System)
	}
	for _, want := range []string{
		"Implement user authentication",
		"Passwords are hashed with bcrypt",
		code,
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}
