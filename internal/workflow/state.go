package workflow

// State is a workflow execution state. The engine drives a run through these
// states; Done and Failed are terminal.
type State string

const (
	StateFetching     State = "fetching"
	StateGenerating   State = "generating"
	StateEvaluating   State = "evaluating"
	StateRegenerating State = "regenerating"
	StateAttaching    State = "attaching"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Outcome is the final report of one workflow run. It is constructed once
// per run and returned to the caller.
//
// Invariant: when State is Done, either MeetsThreshold is true or Iterations
// equals the configured maximum.
type Outcome struct {
	ItemID string `json:"item_id"`
	State  State  `json:"state"`

	FinalCode      string  `json:"-"`
	FinalScore     float64 `json:"final_score"`
	MeetsThreshold bool    `json:"meets_threshold"`
	Iterations     int     `json:"iterations"`

	AttachmentCreated bool   `json:"attachment_created"`
	AttachmentPath    string `json:"attachment_path,omitempty"`

	// ErrorNote carries the failure reason for Failed runs, or the
	// non-fatal attachment upload error for Done runs.
	ErrorNote string `json:"error_note,omitempty"`

	// ParseWarning is set when at least one evaluation response could not
	// be parsed and was treated as a zero score.
	ParseWarning bool `json:"parse_warning,omitempty"`

	// Transient is set on Failed runs whose cause looks retryable
	// (tracker unreachable rather than item missing).
	Transient bool `json:"-"`
}
