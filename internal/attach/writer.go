package attach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stellarlink/storygen/internal/evaluator"
	"github.com/stellarlink/storygen/internal/generator"
	"github.com/stellarlink/storygen/internal/tracker"
)

// extensions maps target languages to generated file extensions.
var extensions = map[string]string{
	"python":     "py",
	"go":         "go",
	"javascript": "js",
	"typescript": "ts",
	"java":       "java",
	"ruby":       "rb",
	"rust":       "rs",
}

// UploadError marks a failed attachment upload. The local file is kept and
// the workflow still completes; the error is only reported in the outcome.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload attachment %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsUploadError reports whether err originated from an attachment upload failure.
func IsUploadError(err error) bool {
	var target *UploadError
	return errors.As(err, &target)
}

// Result describes the written attachment. Path is always set once the local
// file exists, even when the upload failed.
type Result struct {
	Path     string
	Ref      string
	Uploaded bool
}

// Writer serializes final code to the output directory and uploads it to the tracker
type Writer struct {
	tracker   tracker.Tracker
	outputDir string
	language  string
	now       func() time.Time
}

// NewWriter creates an attachment writer
func NewWriter(t tracker.Tracker, outputDir, language string) *Writer {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	return &Writer{
		tracker:   t,
		outputDir: outputDir,
		language:  language,
		now:       time.Now,
	}
}

// Attach writes the generated code to a local file and uploads it as a
// tracker attachment. An upload failure still returns the Result with the
// local path so callers can report a partial success.
func (w *Writer) Attach(ctx context.Context, item *tracker.WorkItem, attempt *generator.Attempt, eval *evaluator.Result) (*Result, error) {
	filename := w.filename(item.ID)
	path := filepath.Join(w.outputDir, filename)
	content := w.fileContent(item, attempt, eval)

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write attachment file: %w", err)
	}
	log.Printf("[Attach] Code file created: %s", path)

	ref, err := w.tracker.AttachFile(ctx, item, filename, []byte(content))
	if err != nil {
		log.Printf("[Attach] Upload failed for %s: %v", item.ID, err)
		return &Result{Path: path}, &UploadError{Path: path, Err: err}
	}

	log.Printf("[Attach] Attachment uploaded for %s: %s", item.ID, ref)
	return &Result{Path: path, Ref: ref, Uploaded: true}, nil
}

// filename derives the generated file name from the item id and a timestamp:
// generated_code_<item_id>_<timestamp>.<ext>
func (w *Writer) filename(itemID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, itemID)

	ext, ok := extensions[strings.ToLower(w.language)]
	if !ok {
		ext = "txt"
	}

	return fmt.Sprintf("generated_code_%s_%s.%s", sanitized, w.now().Format("20060102_150405"), ext)
}

// fileContent prepends a header banner summarizing the run to the code.
func (w *Writer) fileContent(item *tracker.WorkItem, attempt *generator.Attempt, eval *evaluator.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Generated code for work item %s\n", item.ID)
	fmt.Fprintf(&b, "# Title: %s\n", item.Title)
	fmt.Fprintf(&b, "# Generated on: %s\n", w.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "# Iterations: %d\n", attempt.Iteration)
	if eval != nil {
		fmt.Fprintf(&b, "# Evaluation score: %.1f%%\n", eval.Score)
		fmt.Fprintf(&b, "# Meets threshold: %v\n", eval.MeetsThreshold)
		if eval.Assessment != "" {
			fmt.Fprintf(&b, "# Assessment: %s\n", strings.ReplaceAll(eval.Assessment, "\n", " "))
		}
	}
	b.WriteString("\n")
	b.WriteString(attempt.Code)
	b.WriteString("\n")

	return b.String()
}
