// Package session tracks whether the authenticated browsing session is
// fresh enough to skip logging in again.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/moby/sys/atomicwriter"
)

const savedAtKey = "saved_at"

// Cache reads and refreshes the persisted session file. The file may carry
// keys owned by other tools (cookies, storage state); they are preserved.
type Cache struct {
	path   string
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewCache creates a session cache backed by path.
func NewCache(path string, maxAge time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = domain.DefaultSessionMaxAge
	}
	return &Cache{path: path, maxAge: maxAge, now: time.Now, logger: logger}
}

// SetClock overrides the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// MaxAge returns the configured freshness window.
func (c *Cache) MaxAge() time.Duration {
	return c.maxAge
}

// IsValid reports whether a fresh session exists. Missing, unreadable or
// malformed state is treated as no session.
func (c *Cache) IsValid() bool {
	state, ok := c.State()
	if !ok {
		return false
	}
	return state.ValidAt(c.now(), c.maxAge)
}

// State returns the stored session state, if any.
func (c *Cache) State() (domain.SessionState, bool) {
	doc, err := c.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Session file unreadable, treating as absent", "path", c.path, "error", err)
		}
		return domain.SessionState{}, false
	}

	raw, ok := doc[savedAtKey]
	if !ok {
		return domain.SessionState{}, false
	}
	savedAt, err := parseSavedAt(raw)
	if err != nil {
		c.logger.Warn("Session timestamp malformed, treating as absent", "path", c.path, "error", err)
		return domain.SessionState{}, false
	}
	return domain.SessionState{SavedAt: savedAt}, true
}

// MarkFresh stamps the session with the current time and writes the file
// atomically. Other keys already in the file are kept as-is; an unreadable
// file is replaced.
func (c *Cache) MarkFresh() error {
	doc, err := c.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Replacing unreadable session file", "path", c.path, "error", err)
		}
		doc = make(map[string]json.RawMessage)
	}

	stamp, err := json.Marshal(c.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("encode session timestamp: %w", err)
	}
	doc[savedAtKey] = stamp

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := atomicwriter.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	c.logger.Debug("Session marked fresh", "path", c.path)
	return nil
}

func (c *Cache) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode session file: not an object")
	}
	return doc, nil
}

// parseSavedAt accepts an RFC 3339 string or a unix timestamp in seconds
// (integer or fractional).
func parseSavedAt(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixFloat(f)
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, fmt.Errorf("timestamp is neither string nor number")
	}
	return unixFloat(f)
}

func unixFloat(f float64) (time.Time, error) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid unix timestamp %v", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}
