// Package domain contains core domain types for the outreach agent.
package domain

import (
	"fmt"
	"strings"
)

// TaskKind identifies one kind of outreach task.
type TaskKind string

const (
	// TaskReply replies to simple birthday wishes in the message inbox.
	TaskReply TaskKind = "reply"
	// TaskBirthdayWish proactively wishes contacts whose birthday is today.
	TaskBirthdayWish TaskKind = "birthday-wish"
	// TaskFollowerCheck reads a public follower count.
	TaskFollowerCheck TaskKind = "follower-check"
)

// TaskKinds lists every known task kind in display order.
var TaskKinds = []TaskKind{TaskBirthdayWish, TaskReply, TaskFollowerCheck}

// ParseTaskKind converts a string into a TaskKind.
func ParseTaskKind(s string) (TaskKind, error) {
	k := TaskKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TaskKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// RequiresLogin reports whether the task needs an authenticated session.
func (k TaskKind) RequiresLogin() bool {
	return k == TaskReply || k == TaskBirthdayWish
}

// DisplayName returns the human-readable task name used in notifications.
func (k TaskKind) DisplayName() string {
	switch k {
	case TaskReply:
		return "Reply to Wishes"
	case TaskBirthdayWish:
		return "Birthday Detection"
	case TaskFollowerCheck:
		return "Follower Check"
	default:
		return string(k)
	}
}

// NormalizeName returns the canonical form of a contact name: trimmed,
// inner whitespace collapsed to single spaces and lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
