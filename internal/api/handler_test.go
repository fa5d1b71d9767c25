//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/outreach"
	"github.com/ashureev/outreach-agent/internal/store"
)

type fakeHistory struct {
	records []domain.HistoryRecord
	pingErr error
	lastQ   store.HistoryQuery
}

func (f *fakeHistory) List(_ context.Context, q store.HistoryQuery) ([]domain.HistoryRecord, error) {
	f.lastQ = q
	return f.records, nil
}

func (f *fakeHistory) Ping(context.Context) error { return f.pingErr }

type fakeSession struct {
	state domain.SessionState
	ok    bool
}

func (f fakeSession) State() (domain.SessionState, bool) { return f.state, f.ok }
func (f fakeSession) IsValid() bool                       { return f.ok }
func (f fakeSession) MaxAge() time.Duration               { return 12 * time.Hour }

type fakePipeline struct {
	mu      sync.Mutex
	busy    bool
	started []string
}

func (f *fakePipeline) StartTask(_ context.Context, kind domain.TaskKind) error {
	return f.start(string(kind))
}

func (f *fakePipeline) StartDaily(context.Context) error { return f.start("daily") }

func (f *fakePipeline) start(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return outreach.ErrBusy
	}
	f.started = append(f.started, name)
	return nil
}

func (f *fakePipeline) Running() bool { return f.busy }

func (f *fakePipeline) LastResults() []outreach.Result {
	return []outreach.Result{{RunID: "r1", Task: domain.TaskReply, Recorded: 2}}
}

func (f *fakePipeline) Tasks() []domain.TaskKind {
	return []domain.TaskKind{domain.TaskBirthdayWish, domain.TaskReply}
}

type fixedSchedule time.Time

func (s fixedSchedule) NextRun() time.Time { return time.Time(s) }

func newTestRouter(h *fakeHistory, p *fakePipeline, sess fakeSession) http.Handler {
	next := fixedSchedule(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	handler := NewHandler(context.Background(), h, sess, p, next, true)
	return NewRouter(handler, RouterConfig{AllowedOrigins: []string{"*"}})
}

func do(t *testing.T, router http.Handler, method, target string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resp := rec.Result()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeHistory{}, &fakePipeline{}, fakeSession{})
	resp, body := do(t, router, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("unexpected health: %d %v", resp.StatusCode, body)
	}

	down := newTestRouter(&fakeHistory{pingErr: errors.New("locked")}, &fakePipeline{}, fakeSession{})
	resp, body = do(t, down, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("unexpected degraded health: %d %v", resp.StatusCode, body)
	}
}

func TestListHistory(t *testing.T) {
	t.Parallel()
	h := &fakeHistory{records: []domain.HistoryRecord{{ID: 1, ContactName: "alice", TaskKind: domain.TaskReply}}}
	router := newTestRouter(h, &fakePipeline{}, fakeSession{})

	resp, body := do(t, router, http.MethodGet, "/api/history?kind=reply&days=7&limit=9000&include_dry_run=true")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if recs, ok := body["records"].([]any); !ok || len(recs) != 1 {
		t.Fatalf("unexpected records: %v", body)
	}
	want := store.HistoryQuery{Kind: domain.TaskReply, Days: 7, Limit: maxHistoryLimit, IncludeDryRun: true}
	if h.lastQ != want {
		t.Errorf("query = %+v, want %+v", h.lastQ, want)
	}

	for _, bad := range []string{"?kind=spam", "?days=-1", "?limit=x", "?include_dry_run=maybe"} {
		resp, _ := do(t, router, http.MethodGet, "/api/history"+bad)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", bad, resp.StatusCode)
		}
	}
}

func TestListHistoryEmptyIsArray(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeHistory{}, &fakePipeline{}, fakeSession{})
	_, body := do(t, router, http.MethodGet, "/api/history")
	if recs, ok := body["records"].([]any); !ok || len(recs) != 0 {
		t.Fatalf("expected empty array, got %v", body["records"])
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()
	saved := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	router := newTestRouter(&fakeHistory{}, &fakePipeline{}, fakeSession{state: domain.SessionState{SavedAt: saved}, ok: true})

	_, body := do(t, router, http.MethodGet, "/api/session")
	if body["valid"] != true {
		t.Errorf("expected valid session: %v", body)
	}
	if body["expires_at"] != "2026-03-01T20:00:00Z" {
		t.Errorf("expires_at = %v", body["expires_at"])
	}

	empty := newTestRouter(&fakeHistory{}, &fakePipeline{}, fakeSession{})
	_, body = do(t, empty, http.MethodGet, "/api/session")
	if body["valid"] != false || body["saved_at"] != nil {
		t.Errorf("unexpected empty session: %v", body)
	}
}

func TestGetScheduleAndStatus(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeHistory{}, &fakePipeline{busy: true}, fakeSession{})

	_, body := do(t, router, http.MethodGet, "/api/schedule")
	if body["next_run"] != "2026-03-02T09:00:00Z" || body["dry_run"] != true {
		t.Errorf("unexpected schedule: %v", body)
	}
	if tasks, ok := body["tasks"].([]any); !ok || len(tasks) != 2 || tasks[0] != "birthday-wish" {
		t.Errorf("unexpected tasks: %v", body["tasks"])
	}

	_, body = do(t, router, http.MethodGet, "/api/status")
	if body["running"] != true {
		t.Errorf("expected running: %v", body)
	}
	if last, ok := body["last"].([]any); !ok || len(last) != 1 {
		t.Errorf("unexpected last results: %v", body["last"])
	}
}

func TestRunTask(t *testing.T) {
	t.Parallel()
	p := &fakePipeline{}
	router := newTestRouter(&fakeHistory{}, p, fakeSession{})

	resp, body := do(t, router, http.MethodPost, "/api/tasks/Reply/run")
	if resp.StatusCode != http.StatusAccepted || body["task"] != "reply" {
		t.Fatalf("unexpected response: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, router, http.MethodPost, "/api/tasks/daily/run")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("daily status = %d", resp.StatusCode)
	}
	if len(p.started) != 2 || p.started[0] != "reply" || p.started[1] != "daily" {
		t.Errorf("started = %v", p.started)
	}

	resp, _ = do(t, router, http.MethodPost, "/api/tasks/spam/run")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kind status = %d", resp.StatusCode)
	}

	p.busy = true
	resp, body = do(t, router, http.MethodPost, "/api/tasks/reply/run")
	if resp.StatusCode != http.StatusConflict || body["error"] == nil {
		t.Errorf("busy response: %d %v", resp.StatusCode, body)
	}
}
