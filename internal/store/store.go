// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// HistoryRepository is the append-only ledger of outreach actions.
type HistoryRepository interface {
	// Record appends one history record. Names are normalized before storage.
	Record(ctx context.Context, kind domain.TaskKind, contact, message string, dryRun bool) error

	// RecentContacts returns the distinct normalized contact names acted on
	// for kind within the last days calendar days, excluding dry runs.
	RecentContacts(ctx context.Context, kind domain.TaskKind, days int) (domain.NameSet, error)

	// List returns records newest first.
	List(ctx context.Context, q HistoryQuery) ([]domain.HistoryRecord, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// HistoryQuery filters List. Zero values mean "no filter".
type HistoryQuery struct {
	Kind          domain.TaskKind
	Days          int
	Limit         int
	IncludeDryRun bool
}
