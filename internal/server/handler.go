package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stellarlink/storygen/internal/dispatcher"
	"github.com/stellarlink/storygen/internal/store"
)

// Handler serves the workflow HTTP API
type Handler struct {
	store *store.Store
	disp  *dispatcher.Dispatcher
	now   func() time.Time
}

// NewHandler creates an API handler
func NewHandler(s *store.Store, d *dispatcher.Dispatcher) *Handler {
	return &Handler{store: s, disp: d, now: time.Now}
}

// RegisterRoutes registers the API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/runs/{item_id}", h.CreateRun).Methods("POST")
	r.HandleFunc("/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.RunDetail).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// CreateRun enqueues a workflow run for a work item
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["item_id"]
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	maxIterations := 0
	if raw := r.URL.Query().Get("max_iterations"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "max_iterations must be a positive integer")
			return
		}
		maxIterations = parsed
	}

	runID := fmt.Sprintf("%s-%d", itemID, h.now().UnixNano())
	run := &store.Run{
		ID:            runID,
		ItemID:        itemID,
		Status:        store.StatusPending,
		MaxIterations: maxIterations,
	}
	h.store.Create(run)

	err := h.disp.Enqueue(&dispatcher.Job{
		RunID:         runID,
		ItemID:        itemID,
		MaxIterations: maxIterations,
	})
	if err != nil {
		h.store.UpdateStatus(runID, store.StatusFailed)
		switch {
		case errors.Is(err, dispatcher.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "run queue is full, try again later")
		case errors.Is(err, dispatcher.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":  runID,
		"item_id": itemID,
		"status":  string(store.StatusPending),
	})
}

// ListRuns returns all runs, newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	// List hands out copies, so dropping the logs here only affects the
	// response. Log entries are only included in the detail view.
	runs := h.store.List()
	for _, run := range runs {
		run.Logs = nil
	}

	writeJSON(w, http.StatusOK, runs)
}

// RunDetail returns one run including its log entries
func (h *Handler) RunDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, ok := h.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Health reports service liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
