package prompt

import (
	"bytes"
	"text/template"

	"github.com/stellarlink/storygen/internal/tracker"
)

// Prompt is a rendered system+user prompt pair.
type Prompt struct {
	System string
	User   string
}

var (
	generationSystemTmpl = template.Must(template.New("generation-system").Parse(GenerationSystemTemplate))
	generationUserTmpl   = template.Must(template.New("generation-user").Parse(GenerationUserTemplate))
	evaluationSystemTmpl = template.Must(template.New("evaluation-system").Parse(EvaluationSystemTemplate))
	evaluationUserTmpl   = template.Must(template.New("evaluation-user").Parse(EvaluationUserTemplate))
)

// BuildGeneration renders the code generation prompt for a work item.
// feedback is the previous evaluation's feedback block, empty on the first
// iteration.
func BuildGeneration(item *tracker.WorkItem, language, feedback string) (Prompt, error) {
	system, err := render(generationSystemTmpl, map[string]any{
		"Language": language,
	})
	if err != nil {
		return Prompt{}, err
	}

	user, err := render(generationUserTmpl, map[string]any{
		"Title":              item.Title,
		"Description":        item.Description,
		"AcceptanceCriteria": item.AcceptanceCriteria,
		"Dependencies":       item.Dependencies,
		"Feedback":           feedback,
		"Language":           language,
	})
	if err != nil {
		return Prompt{}, err
	}

	return Prompt{System: system, User: user}, nil
}

// BuildEvaluation renders the evaluation prompt for generated code.
func BuildEvaluation(item *tracker.WorkItem, code string) (Prompt, error) {
	system, err := render(evaluationSystemTmpl, nil)
	if err != nil {
		return Prompt{}, err
	}

	user, err := render(evaluationUserTmpl, map[string]any{
		"Title":              item.Title,
		"Description":        item.Description,
		"AcceptanceCriteria": item.AcceptanceCriteria,
		"Code":               code,
	})
	if err != nil {
		return Prompt{}, err
	}

	return Prompt{System: system, User: user}, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
