package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleExpression(t *testing.T) {
	t.Parallel()
	if got := (Config{Hour: 9, Minute: 5}).Spec(); got != "5 9 * * *" {
		t.Fatalf("cron expression = %q", got)
	}
}

func TestNewRejectsInvalidTime(t *testing.T) {
	t.Parallel()
	for _, cfg := range []Config{{Hour: 24}, {Minute: 60}, {Hour: -1}} {
		if _, err := New(cfg, func(context.Context) error { return nil }, quietLogger()); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestNextAfter(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+5", 5*3600)
	s, err := New(Config{Hour: 9, Minute: 0, Location: loc}, func(context.Context) error { return nil }, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		from time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 1, 8, 0, 0, 0, loc), time.Date(2026, 3, 1, 9, 0, 0, 0, loc)},
		{time.Date(2026, 3, 1, 9, 0, 0, 0, loc), time.Date(2026, 3, 2, 9, 0, 0, 0, loc)},
		{time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC), time.Date(2026, 3, 2, 9, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		if got := s.NextAfter(tc.from); !got.Equal(tc.want) {
			t.Errorf("NextAfter(%v) = %v, want %v", tc.from, got, tc.want)
		}
	}
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	s, err := New(Config{Hour: 9}, func(context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	wrapped := s.cron.Entry(s.entryID).WrappedJob

	done := make(chan struct{})
	go func() {
		wrapped.Run()
		close(done)
	}()
	<-started

	wrapped.Run()
	if got := calls.Load(); got != 1 {
		t.Fatalf("overlapping trigger ran the job: calls = %d", got)
	}

	close(release)
	<-done

	wrapped.Run()
	if got := calls.Load(); got != 2 {
		t.Fatalf("trigger after completion should run: calls = %d", got)
	}
}

func TestJobFailuresAreContained(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s, err := New(Config{Hour: 9}, func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("agent blew up")
		}
		return errors.New("retries exhausted")
	}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	wrapped := s.cron.Entry(s.entryID).WrappedJob

	for range 5 {
		wrapped.Run()
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("daily triggers after a panicking run: calls = %d, want 5", got)
	}
}

func TestCancelledContextSkipsRunAndStops(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s, err := New(Config{Hour: 9}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	s.fire()
	if calls.Load() != 0 {
		t.Fatal("job must not run after cancellation")
	}
	s.Stop()
}
