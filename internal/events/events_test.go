package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/outreach-agent/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubDeliversAndSequences(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, quietLogger())
	sub, replay := hub.Subscribe(0)
	defer sub.Close()
	if len(replay) != 0 {
		t.Fatalf("unexpected replay: %v", replay)
	}

	hub.Publish(Event{Type: RunStarted, Task: domain.TaskReply})
	hub.Publish(Event{Type: RunSucceeded, Task: domain.TaskReply})

	first, second := <-sub.C, <-sub.C
	if first.Seq != 1 || second.Seq != 2 || first.Time.IsZero() {
		t.Fatalf("unexpected events: %+v %+v", first, second)
	}
}

func TestBacklogKeepsMostRecent(t *testing.T) {
	t.Parallel()
	hub := NewHub(3, quietLogger())
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: AttemptStarted, Attempt: i + 1})
	}

	recent := hub.Recent(0)
	if len(recent) != 3 || recent[0].Seq != 3 || recent[2].Seq != 5 {
		t.Fatalf("unexpected backlog: %+v", recent)
	}
	if got := hub.Recent(4); len(got) != 1 || got[0].Seq != 5 {
		t.Fatalf("unexpected since(4): %+v", got)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, quietLogger())
	sub, _ := hub.Subscribe(0)

	for i := 0; i < subscriberBuffer+1; i++ {
		hub.Publish(Event{Type: AttemptFailed})
	}
	if hub.Subscribers() != 0 {
		t.Fatal("slow subscriber should be removed")
	}

	drained := 0
	for range sub.C {
		drained++
	}
	if drained != subscriberBuffer {
		t.Fatalf("drained %d events, want %d", drained, subscriberBuffer)
	}
	sub.Close()
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return e
}

func TestWebSocketReplayAndLive(t *testing.T) {
	t.Parallel()
	hub := NewHub(16, quietLogger())
	hub.Publish(Event{Type: RunStarted, RunID: "r1"})
	hub.Publish(Event{Type: RunSucceeded, RunID: "r1"})

	srv := httptest.NewServer(NewHandler(hub, "*"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?since=1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if e := readEvent(t, ctx, conn); e.Seq != 2 || e.Type != RunSucceeded {
		t.Fatalf("unexpected replay event: %+v", e)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(Event{Type: RunStarted, RunID: "r2", Task: domain.TaskBirthdayWish})

	if e := readEvent(t, ctx, conn); e.RunID != "r2" || e.Task != domain.TaskBirthdayWish {
		t.Fatalf("unexpected live event: %+v", e)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, quietLogger())
	srv := httptest.NewServer(NewHandler(hub, "https://dash.example.com"))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsBadSince(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, quietLogger())
	srv := httptest.NewServer(NewHandler(hub, "*"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?since=abc")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
