package evaluator

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// response is the JSON structure the evaluation prompt asks the model for.
type response struct {
	MatchScore  float64            `json:"match_score"`
	Issues      []Issue            `json:"issues"`
	Suggestions []Suggestion       `json:"suggestions"`
	Assessment  string             `json:"assessment"`
	Criteria    map[string]float64 `json:"criteria"`
}

// parseResponse extracts the structured evaluation from a raw model reply.
// Markdown fences are stripped first; if strict parsing fails the payload is
// run through jsonrepair once before giving up with a ParseError.
func parseResponse(raw string) (*response, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, &ParseError{msg: "evaluation response contains no JSON object"}
	}

	var parsed response
	if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
		return validate(&parsed)
	}

	log.Printf("[Evaluator] Strict JSON parse failed, attempting repair")
	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return nil, &ParseError{msg: "failed to repair evaluation JSON", err: repairErr}
	}

	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, &ParseError{msg: "failed to parse evaluation JSON", err: err}
	}

	return validate(&parsed)
}

func validate(parsed *response) (*response, error) {
	if parsed.MatchScore < 0 || parsed.MatchScore > 100 {
		return nil, &ParseError{msg: "evaluation score out of range"}
	}
	return parsed, nil
}

// extractJSON returns the JSON object embedded in a model reply, handling
// ```json fences and surrounding prose.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}

	return trimmed[start : end+1]
}
