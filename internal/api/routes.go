package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/outreach"
	"github.com/ashureev/outreach-agent/internal/store"
)

const (
	healthCheckTimeout = 5 * time.Second
	maxHistoryLimit    = 500
	dailyTarget        = "daily"
)

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/history", h.ListHistory)
		r.Get("/session", h.GetSession)
		r.Get("/schedule", h.GetSchedule)
		r.Get("/status", h.GetStatus)
		r.Post("/tasks/{kind}/run", h.RunTask)
	})
}

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.history.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// ListHistory returns history records newest first. Query parameters:
// kind, days, limit and include_dry_run.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query store.HistoryQuery

	if raw := q.Get("kind"); raw != "" {
		kind, err := domain.ParseTaskKind(raw)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		query.Kind = kind
	}

	var err error
	if query.Days, err = intParam(q.Get("days"), 0); err != nil {
		Error(w, http.StatusBadRequest, "invalid days")
		return
	}
	if query.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		Error(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if query.Limit > maxHistoryLimit {
		query.Limit = maxHistoryLimit
	}
	if raw := q.Get("include_dry_run"); raw != "" {
		if query.IncludeDryRun, err = strconv.ParseBool(raw); err != nil {
			Error(w, http.StatusBadRequest, "invalid include_dry_run")
			return
		}
	}

	records, err := h.history.List(r.Context(), query)
	if err != nil {
		slog.Error("Failed to list history", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []domain.HistoryRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{"records": records})
}

// GetSession reports whether a fresh session exists.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"valid":           h.session.IsValid(),
		"max_age_seconds": int64(h.session.MaxAge().Seconds()),
	}
	if state, ok := h.session.State(); ok {
		resp["saved_at"] = state.SavedAt
		resp["expires_at"] = state.ExpiresAt(h.session.MaxAge())
	}
	JSON(w, http.StatusOK, resp)
}

// GetSchedule returns the next daily run and the configured task order.
func (h *Handler) GetSchedule(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"tasks":   h.pipeline.Tasks(),
		"dry_run": h.dryRun,
	}
	if next := h.schedule.NextRun(); !next.IsZero() {
		resp["next_run"] = next
	}
	JSON(w, http.StatusOK, resp)
}

// GetStatus reports whether a run is in progress and the last result of
// each task.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	results := h.pipeline.LastResults()
	if results == nil {
		results = []outreach.Result{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"running": h.pipeline.Running(),
		"last":    results,
	})
}

// RunTask starts a task, or the whole daily list for "daily", in the
// background. It answers 409 when another run is in progress.
func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "kind")

	var err error
	if target == dailyTarget {
		err = h.pipeline.StartDaily(h.runCtx)
	} else {
		kind, parseErr := domain.ParseTaskKind(target)
		if parseErr != nil {
			Error(w, http.StatusNotFound, parseErr.Error())
			return
		}
		target = string(kind)
		err = h.pipeline.StartTask(h.runCtx, kind)
	}

	switch {
	case errors.Is(err, outreach.ErrBusy):
		Error(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("Failed to start run", "target", target, "error", err)
		Error(w, http.StatusInternalServerError, "failed to start run")
	default:
		JSON(w, http.StatusAccepted, map[string]string{"status": "started", "task": target})
	}
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
