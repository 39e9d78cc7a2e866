package tracker

import "context"

// WorkItem is the normalized view of a tracker work item. It is immutable
// once fetched; the workflow engine owns it for the duration of one run.
type WorkItem struct {
	// ID is the user-visible identifier, e.g. "US12345" for Rally or "#42" for GitHub.
	ID string

	// Ref is the provider-native reference used by follow-up calls
	// (Rally object ref URL, GitHub issue number as string).
	Ref string

	Title              string
	Description        string
	AcceptanceCriteria string

	// Dependencies lists predecessor items in the order the tracker returned them.
	Dependencies []Dependency
}

// Dependency is a resolved summary of a linked predecessor item. A dependency
// that could not be resolved still appears here with a placeholder summary.
type Dependency struct {
	ID      string
	Summary string
}

// Tracker is the interface that all issue tracker backends must implement
type Tracker interface {
	// FetchWorkItem retrieves a work item and its dependency summaries
	FetchWorkItem(ctx context.Context, id string) (*WorkItem, error)

	// AttachFile uploads content as an attachment on the work item and
	// returns a provider reference for the created attachment
	AttachFile(ctx context.Context, item *WorkItem, filename string, content []byte) (string, error)

	// Name returns the backend name
	Name() string
}
