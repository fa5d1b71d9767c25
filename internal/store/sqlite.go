package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	recordRetryAttempts = 3
	recordRetryDelay    = 100 * time.Millisecond
	defaultListLimit    = 100
)

// SQLiteStore implements HistoryRepository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
	loc *time.Location
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for record dates and windows.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *SQLiteStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSQLite creates a new SQLite-backed history repository.
func NewSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		task_kind TEXT NOT NULL,
		contact_name TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		is_dry_run INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_kind_date ON history(task_kind, date) WHERE is_dry_run = 0;

	CREATE TRIGGER IF NOT EXISTS history_no_update BEFORE UPDATE ON history
	BEGIN SELECT RAISE(ABORT, 'history is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS history_no_delete BEFORE DELETE ON history
	BEGIN SELECT RAISE(ABORT, 'history is append-only'); END;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Record appends one history record in a single INSERT.
func (s *SQLiteStore) Record(ctx context.Context, kind domain.TaskKind, contact, message string, dryRun bool) error {
	name := domain.NormalizeName(contact)
	if name == "" {
		return fmt.Errorf("record history: empty contact name")
	}

	now := s.now()
	date := now.In(s.loc).Format(domain.DateLayout)
	query := `
	INSERT INTO history (date, task_kind, contact_name, message, is_dry_run, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "record history", recordRetryAttempts, recordRetryDelay, func() error {
		_, err := s.db.ExecContext(ctx, query, date, string(kind), name, strings.TrimSpace(message), dryRun, now.Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	slog.Debug("History recorded", "task", kind, "contact", name, "date", date, "dry_run", dryRun)
	return nil
}

// RecentContacts returns contacts acted on for kind on any of the last days
// calendar days including today. A contact recorded on day D is returned up
// to day D+days-1. Dry-run records never count.
func (s *SQLiteStore) RecentContacts(ctx context.Context, kind domain.TaskKind, days int) (domain.NameSet, error) {
	names := make(domain.NameSet)
	if days <= 0 {
		return names, nil
	}

	query := `
		SELECT DISTINCT contact_name FROM history
		WHERE task_kind = ? AND is_dry_run = 0 AND date >= ?`

	rows, err := s.db.QueryContext(ctx, query, string(kind), s.cutoff(days))
	if err != nil {
		return nil, fmt.Errorf("query recent contacts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent contacts rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan recent contact: %w", err)
		}
		names.Add(name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent contacts: %w", err)
	}

	return names, nil
}

// List returns history records newest first.
func (s *SQLiteStore) List(ctx context.Context, q HistoryQuery) ([]domain.HistoryRecord, error) {
	query := `
		SELECT id, date, task_kind, contact_name, message, is_dry_run, created_at
		FROM history WHERE 1 = 1`
	var args []any

	if q.Kind != "" {
		query += ` AND task_kind = ?`
		args = append(args, string(q.Kind))
	}
	if q.Days > 0 {
		query += ` AND date >= ?`
		args = append(args, s.cutoff(q.Days))
	}
	if !q.IncludeDryRun {
		query += ` AND is_dry_run = 0`
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close history rows", "error", closeErr)
		}
	}()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var kind string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Date, &kind, &rec.ContactName, &rec.Message, &rec.IsDryRun, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.TaskKind = domain.TaskKind(kind)
		rec.RecordedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return records, nil
}

// cutoff returns the oldest calendar day inside a window of days days.
func (s *SQLiteStore) cutoff(days int) string {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return today.AddDate(0, 0, -(days - 1)).Format(domain.DateLayout)
}

var _ HistoryRepository = (*SQLiteStore)(nil)
