package store

import (
	"sort"
	"sync"
	"time"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one workflow execution tracked for the HTTP API.
type Run struct {
	ID                string     `json:"id"`
	ItemID            string     `json:"item_id"`
	Status            RunStatus  `json:"status"`
	MaxIterations     int        `json:"max_iterations"`
	Iterations        int        `json:"iterations"`
	Score             float64    `json:"score"`
	AttachmentCreated bool       `json:"attachment_created"`
	ErrorMsg          string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Logs              []LogEntry `json:"logs,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, error, success
	Message   string    `json:"message"`
}

// Store keeps workflow runs in memory with thread-safe operations
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewStore creates a new run store
func NewStore() *Store {
	return &Store{
		runs: make(map[string]*Run),
	}
}

func (s *Store) Create(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	if run.Status == "" {
		run.Status = StatusPending
	}
	s.runs[run.ID] = run
}

// clone copies the run including its log slice, so callers can read or
// encode the result without holding the store lock.
func (r *Run) clone() *Run {
	c := *r
	if r.Logs != nil {
		c.Logs = append([]LogEntry(nil), r.Logs...)
	}
	return &c
}

// Get returns a copy of the run; workers keep mutating the stored one.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return run.clone(), true
}

// List returns copies of all runs sorted by creation time, newest first
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.clone())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

func (s *Store) UpdateStatus(id string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
		run.UpdatedAt = time.Now()
	}
}

func (s *Store) AddLog(id string, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Logs = append(run.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
		run.UpdatedAt = time.Now()
	}
}

// SetOutcome records the final numbers of a finished run
func (s *Store) SetOutcome(id string, iterations int, score float64, attachmentCreated bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Iterations = iterations
		run.Score = score
		run.AttachmentCreated = attachmentCreated
		run.ErrorMsg = errMsg
		run.UpdatedAt = time.Now()
	}
}
