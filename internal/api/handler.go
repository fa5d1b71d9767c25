// Package api provides the operations HTTP API of the outreach agent.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/outreach"
	"github.com/ashureev/outreach-agent/internal/store"
)

// History is the read side of the history ledger.
type History interface {
	List(ctx context.Context, q store.HistoryQuery) ([]domain.HistoryRecord, error)
	Ping(ctx context.Context) error
}

// Session reports the stored session state.
type Session interface {
	State() (domain.SessionState, bool)
	IsValid() bool
	MaxAge() time.Duration
}

// Pipeline triggers and reports task runs.
type Pipeline interface {
	StartTask(ctx context.Context, kind domain.TaskKind) error
	StartDaily(ctx context.Context) error
	Running() bool
	LastResults() []outreach.Result
	Tasks() []domain.TaskKind
}

// Schedule reports the next scheduled daily run.
type Schedule interface {
	NextRun() time.Time
}

// Handler provides common handler utilities.
type Handler struct {
	history  History
	session  Session
	pipeline Pipeline
	schedule Schedule
	dryRun   bool
	// runCtx scopes background runs, never a request context.
	runCtx context.Context
}

// NewHandler creates a new Handler. runCtx scopes background runs started
// through the API; it is normally the server's lifetime context.
func NewHandler(runCtx context.Context, history History, session Session, pipeline Pipeline, schedule Schedule, dryRun bool) *Handler {
	return &Handler{
		history:  history,
		session:  session,
		pipeline: pipeline,
		schedule: schedule,
		dryRun:   dryRun,
		runCtx:   runCtx,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
