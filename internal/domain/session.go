package domain

import (
	"time"
)

// DefaultSessionMaxAge is how long an authenticated browsing session is
// trusted before the agent is asked to log in again.
const DefaultSessionMaxAge = 12 * time.Hour

// SessionState describes the freshness of an authenticated browsing session.
type SessionState struct {
	SavedAt time.Time `json:"saved_at"`
}

// ValidAt reports whether the session is still fresh at now.
func (s SessionState) ValidAt(now time.Time, maxAge time.Duration) bool {
	if s.SavedAt.IsZero() {
		return false
	}
	return now.Sub(s.SavedAt) <= maxAge
}

// ExpiresAt returns the instant the session stops being valid.
func (s SessionState) ExpiresAt(maxAge time.Duration) time.Time {
	return s.SavedAt.Add(maxAge)
}
