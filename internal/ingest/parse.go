// Package ingest turns the agent's free-text summary into a structured
// outcome and records it to history.
package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// Markers that make a summary line an action line. Matching is
// case-insensitive.
var actionMarkers = []string{"replied to", "would send to", "wished"}

const skipMarker = "skipped"

// nameStops end a contact name that follows an action marker.
var nameStops = []string{":", "\"", "“", " - ", " – ", " — ", "(", " with ", " for ", " a happy", " happy", " on "}

var followerCount = regexp.MustCompile(`(?i)followers?\s*[:=]?\s*([\d,]+)`)

// Parse scans summary line by line. Lines carrying an action marker become
// action entries; otherwise a line mentioning "skipped" adds one to the
// skip count. Everything else is ignored.
func Parse(summary string) domain.RunOutcome {
	out := domain.RunOutcome{RawSummary: summary}

	for _, raw := range strings.Split(summary, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if marker, at := findMarker(line); at >= 0 {
			out.Acted = append(out.Acted, line)
			rest := line[at+len(marker):]
			skipAt := indexFold(line, skipMarker)
			out.Actions = append(out.Actions, domain.Action{
				Line:       line,
				Contact:    extractContact(rest),
				Message:    extractMessage(rest),
				SkipReport: skipAt >= 0 && skipAt < at,
			})
			continue
		}

		if indexFold(line, skipMarker) >= 0 {
			out.Skipped++
		}
	}
	return out
}

// ParseFollowerCount finds the "Followers: N" line of a follower check.
func ParseFollowerCount(summary string) (int, bool) {
	m := followerCount.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// findMarker returns the earliest action marker in line and its offset.
func findMarker(line string) (string, int) {
	best, bestAt := "", -1
	for _, m := range actionMarkers {
		if at := indexFold(line, m); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = m, at
		}
	}
	return best, bestAt
}

// indexFold is a case-insensitive strings.Index for ASCII needles.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// extractContact cuts the name at the first stop. Stops that begin with a
// space only apply after the first word, so a name such as "Happy Gilmore"
// survives.
func extractContact(rest string) string {
	name := strings.TrimLeftFunc(rest, unicode.IsSpace)
	for _, stop := range nameStops {
		from := 0
		if strings.HasPrefix(stop, " ") {
			from = strings.IndexFunc(name, unicode.IsSpace)
			if from < 0 {
				continue
			}
		}
		if at := indexFold(name[from:], stop); at >= 0 {
			name = name[:from+at]
		}
	}
	name = strings.TrimFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.Join(strings.Fields(name), " ")
}

func extractMessage(rest string) string {
	for _, q := range [][2]string{{"\"", "\""}, {"“", "”"}} {
		start := strings.Index(rest, q[0])
		if start < 0 {
			continue
		}
		body := rest[start+len(q[0]):]
		if end := strings.LastIndex(body, q[1]); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(rest, ":"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
