// Package events broadcasts pipeline activity to live subscribers.
package events

import (
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// Type names an event.
type Type string

// Event types.
const (
	RunStarted     Type = "run.started"
	RunRejected    Type = "run.rejected"
	AttemptStarted Type = "attempt.started"
	AttemptFailed  Type = "attempt.failed"
	RunSucceeded   Type = "run.succeeded"
	RunFailed      Type = "run.failed"
	HistoryWritten Type = "history.written"
	DailyStarted   Type = "daily.started"
)

// Event is one pipeline occurrence.
type Event struct {
	Seq     uint64             `json:"seq"`
	Type    Type               `json:"type"`
	Time    time.Time          `json:"time"`
	RunID   string             `json:"run_id,omitempty"`
	Task    domain.TaskKind    `json:"task,omitempty"`
	Attempt int                `json:"attempt,omitempty"`
	Message string             `json:"message,omitempty"`
	Outcome *domain.RunOutcome `json:"outcome,omitempty"`
}

// ring keeps the most recent events.
type ring struct {
	buf  []Event
	head int
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 256
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) push(e Event) {
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// since returns buffered events with Seq greater than after, oldest first.
func (r *ring) since(after uint64) []Event {
	var ordered []Event
	if r.full {
		ordered = append(ordered, r.buf[r.head:]...)
	}
	ordered = append(ordered, r.buf[:r.head]...)

	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}
