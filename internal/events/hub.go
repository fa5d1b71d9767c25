package events

import (
	"log/slog"
	"sync"
	"time"
)

const subscriberBuffer = 64

// Hub fans events out to subscribers and keeps a short backlog for late
// joiners. Publish never blocks: a subscriber that falls behind is dropped.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	backlog *ring
	seq     uint64
	now     func() time.Time
	logger  *slog.Logger
}

// Subscription receives events until it is closed.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	once sync.Once
	hub  *Hub
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// NewHub creates a hub keeping up to backlog recent events.
func NewHub(backlog int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		backlog: newRing(backlog),
		now:     time.Now,
		logger:  logger,
	}
}

// Publish stamps e with a sequence number and time and delivers it.
func (h *Hub) Publish(e Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e.Seq = h.seq
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.backlog.push(e)

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			h.logger.Warn("Event subscriber too slow, dropping", "seq", e.Seq)
			delete(h.subs, sub)
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return e
}

// Subscribe registers a subscriber. Events after the given sequence number
// still in the backlog are returned for replay; live events follow on C.
func (h *Hub) Subscribe(after uint64) (*Subscription, []Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	h.subs[sub] = struct{}{}
	return sub, h.backlog.since(after)
}

// Recent returns the buffered events with Seq greater than after.
func (h *Hub) Recent(after uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backlog.since(after)
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
}
