// Package notify formats run digests and delivers them to notification
// sinks.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// Summary is the digest of one task run handed to every sink.
type Summary struct {
	RunID    string
	Task     domain.TaskKind
	TaskName string
	// Acted lists the contacts acted on (or that would have been, in dry
	// run).
	Acted   []string
	Skipped int
	DryRun  bool
	// Detail is an optional extra line, such as a follower count.
	Detail string
	// Err is set when the run failed.
	Err string
}

// Sink delivers a summary to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, s Summary) error
}

// FormatMessage renders the Markdown digest.
func FormatMessage(s Summary) string {
	mode := "✅ LIVE"
	if s.DryRun {
		mode = "🧪 DRY RUN"
	}
	names := "None"
	if len(s.Acted) > 0 {
		names = strings.Join(s.Acted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎂 *Birthday Wishes Agent — %s*\n", s.TaskName)
	fmt.Fprintf(&b, "Mode: %s\n\n", mode)
	if s.Err != "" {
		fmt.Fprintf(&b, "❌ Failed: %s\n", s.Err)
	}
	fmt.Fprintf(&b, "✅ Sent: %d\n", len(s.Acted))
	fmt.Fprintf(&b, "👥 Contacts: %s\n", names)
	fmt.Fprintf(&b, "⏭️ Skipped: %d\n", s.Skipped)
	if s.Detail != "" {
		fmt.Fprintf(&b, "ℹ️ %s\n", s.Detail)
	}
	return b.String()
}

// Subject renders the e-mail subject line.
func Subject(s Summary) string {
	if s.Err != "" {
		return fmt.Sprintf("[Birthday Agent] %s Summary — failed", s.TaskName)
	}
	return fmt.Sprintf("[Birthday Agent] %s Summary — %d sent", s.TaskName, len(s.Acted))
}

// PlainText strips Markdown emphasis from a formatted message.
func PlainText(msg string) string {
	return strings.NewReplacer("*", "", "_", "").Replace(msg)
}
