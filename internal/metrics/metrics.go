// Package metrics exposes Prometheus collectors for pipeline activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashureev/outreach-agent/internal/runner"
)

const namespace = "outreach"

// Metrics reports run, attempt, contact and notification activity.
type Metrics struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	attempts      *prometheus.CounterVec
	contacts      *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
	runsActive    prometheus.Gauge
	lastSuccess   *prometheus.GaugeVec
}

// MustNewMetrics constructs and registers the collectors. A nil registerer
// means the default registry. Registration errors other than a duplicate
// registration panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Task runs by final status.",
		}, []string{"task", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a task run including retries.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"task", "status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_attempts_total",
			Help:      "Agent invocations by result.",
		}, []string{"task", "result"}),
		contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_acted_total",
			Help:      "Contacts acted on, by mode.",
		}, []string{"task", "mode"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Items the agent reported as skipped.",
		}, []string{"task"}),
		notifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries by sink.",
		}, []string{"sink"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Task runs currently in progress.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per task.",
		}, []string{"task"}),
	}

	m.runs = register(reg, m.runs)
	m.runDuration = register(reg, m.runDuration)
	m.attempts = register(reg, m.attempts)
	m.contacts = register(reg, m.contacts)
	m.skipped = register(reg, m.skipped)
	m.notifyFailure = register(reg, m.notifyFailure)
	m.runsActive = register(reg, m.runsActive)
	m.lastSuccess = register(reg, m.lastSuccess)
	return m
}

// register reuses an already registered collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished records the end of a run.
func (m *Metrics) RunFinished(task, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runs.WithLabelValues(task, status).Inc()
	m.runDuration.WithLabelValues(task, status).Observe(elapsed.Seconds())
	if status == StatusSucceeded {
		m.lastSuccess.WithLabelValues(task).SetToCurrentTime()
	}
}

// RunRejected counts a trigger that could not start.
func (m *Metrics) RunRejected(task, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(task, status).Inc()
}

// ContactsActed adds n acted contacts.
func (m *Metrics) ContactsActed(task string, dryRun bool, n int) {
	if m == nil || n <= 0 {
		return
	}
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	m.contacts.WithLabelValues(task, mode).Add(float64(n))
}

// ItemsSkipped adds n skipped items.
func (m *Metrics) ItemsSkipped(task string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.WithLabelValues(task).Add(float64(n))
}

// NotificationFailed implements notify.FailureCounter.
func (m *Metrics) NotificationFailed(sink string) {
	if m == nil {
		return
	}
	m.notifyFailure.WithLabelValues(sink).Inc()
}

// OnTransition implements runner.Observer.
func (m *Metrics) OnTransition(t runner.Transition) {
	if m == nil {
		return
	}
	switch t.To {
	case runner.Succeeded:
		m.attempts.WithLabelValues(t.Task, "success").Inc()
	case runner.Failed:
		m.attempts.WithLabelValues(t.Task, "failure").Inc()
	}
}

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusBusy      = "busy"
)
