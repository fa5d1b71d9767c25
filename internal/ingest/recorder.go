package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// HistoryWriter appends history records.
type HistoryWriter interface {
	Record(ctx context.Context, kind domain.TaskKind, contact, message string, dryRun bool) error
}

// Recorder writes parsed actions to history.
type Recorder struct {
	history HistoryWriter
	logger  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(history HistoryWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{history: history, logger: logger}
}

// Record writes one history record per distinct contact in outcome, tagged
// with dryRun. Every action is attempted; failures are joined. It returns
// the number of records written.
func (r *Recorder) Record(ctx context.Context, kind domain.TaskKind, outcome domain.RunOutcome, dryRun bool) (int, error) {
	seen := make(domain.NameSet)
	var errs []error
	written := 0

	for _, action := range outcome.Actions {
		if action.SkipReport {
			r.logger.Warn("Summary line reports a skip, not recording a contact", "task", kind, "line", action.Line)
			continue
		}
		if action.Contact == "" {
			r.logger.Warn("Could not extract contact from summary line", "task", kind, "line", action.Line)
			continue
		}
		if seen.Has(action.Contact) {
			continue
		}
		seen.Add(action.Contact)

		if err := r.history.Record(ctx, kind, action.Contact, action.Message, dryRun); err != nil {
			errs = append(errs, fmt.Errorf("record %q: %w", action.Contact, err))
			continue
		}
		written++
	}

	if len(errs) > 0 {
		return written, errors.Join(errs...)
	}
	return written, nil
}
