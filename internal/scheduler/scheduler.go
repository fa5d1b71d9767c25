// Package scheduler fires the daily pipeline at a fixed wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the work fired on every trigger.
type Job func(ctx context.Context) error

// Config holds the trigger time.
type Config struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Spec returns the five-field cron expression for cfg.
func (c Config) Spec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// Scheduler runs one job daily. A trigger that fires while the previous
// run is still in flight is skipped and logged.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	entryID  cron.EntryID
	cfg      Config
	job      Job
	logger   *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	stopped  chan struct{}
	stopOnce sync.Once
}

// New validates cfg and registers job.
func New(cfg Config, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("invalid schedule %02d:%02d", cfg.Hour, cfg.Minute)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Spec())
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec(), err)
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			// Recover sits inside the skip guard so a panicking run still
			// releases it.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		schedule: schedule,
		cfg:      cfg,
		job:      job,
		logger:   logger,
		ctx:      context.Background(),
		stopped:  make(chan struct{}),
	}
	s.entryID = s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start begins firing. The job receives ctx; cancelling it stops the
// scheduler after the in-flight run returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", "schedule", s.cfg.Spec(), "location", s.cfg.Location.String(), "next_run", s.NextRun())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for a running job. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Scheduler stopping")
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("Scheduler stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// NextRun returns the next trigger time after now.
func (s *Scheduler) NextRun() time.Time {
	return s.NextAfter(time.Now())
}

// NextAfter returns the first trigger time strictly after t.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cfg.Location))
}

// fire is the per-run error boundary: errors are logged, never propagated
// into the cron loop.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Info("Scheduled run starting")
	if err := s.job(ctx); err != nil {
		s.logger.Error("Scheduled run failed", "error", err, "elapsed", time.Since(start))
	} else {
		s.logger.Info("Scheduled run finished", "elapsed", time.Since(start))
	}
	s.logger.Info("Next scheduled run", "at", s.NextRun())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.logger.Warn("Scheduled trigger skipped, previous run still in progress")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
