package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashureev/outreach-agent/internal/runner"
)

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	m := MustNewMetrics(prometheus.NewRegistry())

	m.RunStarted()
	if got := testutil.ToFloat64(m.runsActive); got != 1 {
		t.Fatalf("active = %v", got)
	}
	m.RunFinished("reply", StatusSucceeded, time.Minute)
	if got := testutil.ToFloat64(m.runsActive); got != 0 {
		t.Fatalf("active = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("reply", StatusSucceeded)); got != 1 {
		t.Fatalf("runs = %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("reply")); got <= 0 {
		t.Fatalf("last success not set: %v", got)
	}
}

func TestAttemptsFromTransitions(t *testing.T) {
	t.Parallel()
	m := MustNewMetrics(prometheus.NewRegistry())

	m.OnTransition(runner.Transition{Task: "reply", To: runner.Running})
	m.OnTransition(runner.Transition{Task: "reply", To: runner.Failed, Err: errors.New("x")})
	m.OnTransition(runner.Transition{Task: "reply", To: runner.Running})
	m.OnTransition(runner.Transition{Task: "reply", To: runner.Succeeded})

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("reply", "failure")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("reply", "success")); got != 1 {
		t.Fatalf("successes = %v", got)
	}
}

func TestCountersAndDuplicateRegistration(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.ContactsActed("birthday-wish", true, 2)
	second.ContactsActed("birthday-wish", true, 1)
	first.ContactsActed("birthday-wish", false, 0)
	second.NotificationFailed("telegram")

	if got := testutil.ToFloat64(first.contacts.WithLabelValues("birthday-wish", "dry_run")); got != 3 {
		t.Fatalf("dry-run contacts = %v, want shared collector", got)
	}
	if got := testutil.ToFloat64(first.notifyFailure.WithLabelValues("telegram")); got != 1 {
		t.Fatalf("notification failures = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.RunStarted()
	m.RunFinished("reply", StatusFailed, time.Second)
	m.NotificationFailed("email")
	m.OnTransition(runner.Transition{To: runner.Failed})
}
