package domain

import "time"

// DateLayout is the calendar-day format stored in the history ledger.
const DateLayout = "2006-01-02"

// HistoryRecord is one immutable entry of the outreach ledger.
type HistoryRecord struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	TaskKind    TaskKind  `json:"task_kind"`
	ContactName string    `json:"contact_name"`
	Message     string    `json:"message"`
	IsDryRun    bool      `json:"is_dry_run"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Key returns the deduplication identity of the record.
func (r HistoryRecord) Key() string {
	return string(r.TaskKind) + ":" + NormalizeName(r.ContactName)
}
