package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Policies accepted by Config.Policy.
const (
	PolicyConstant    = "constant"
	PolicyExponential = "exponential"
)

// Config controls retries.
type Config struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// Delay is the pause between attempts (the initial pause for the
	// exponential policy).
	Delay  time.Duration
	Policy string
	// AttemptTimeout bounds a single attempt. Zero means no bound.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		Delay:          5 * time.Second,
		Policy:         PolicyConstant,
		AttemptTimeout: 15 * time.Minute,
	}
}

// Attempt performs one full invocation. It is called anew for every
// attempt and must rebuild any time-sensitive input itself.
type Attempt func(ctx context.Context, attempt int) (string, error)

// Runner executes attempts under the retry policy.
type Runner struct {
	cfg        Config
	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
	observers  []Observer
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithSleep replaces the inter-attempt wait. It must return ctx.Err() when
// ctx is done before d elapses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// New creates a Runner.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	r := &Runner{cfg: cfg, sleep: sleepContext, logger: logger}
	r.newBackOff = r.defaultBackOff
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) defaultBackOff() backoff.BackOff {
	var b backoff.BackOff
	if r.cfg.Policy == PolicyExponential && r.cfg.Delay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = r.cfg.Delay
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	} else {
		b = backoff.NewConstantBackOff(r.cfg.Delay)
	}
	return backoff.WithMaxRetries(b, uint64(r.cfg.MaxRetries-1))
}

// machine holds the state of one Run call.
type machine struct {
	task    string
	state   State
	attempt int
	lastErr error
	r       *Runner
}

func (m *machine) to(next State, err error, delay time.Duration) {
	t := Transition{
		Task:    m.task,
		Attempt: m.attempt,
		From:    m.state,
		To:      next,
		Err:     err,
		Delay:   delay,
		At:      time.Now(),
	}
	m.state = next
	m.r.report(t)
}

// Run drives fn through the state machine. A stop signal on ctx is honored
// before an attempt starts and while waiting between attempts; a running
// attempt is never interrupted by it.
func (r *Runner) Run(ctx context.Context, task string, fn Attempt) (string, error) {
	m := &machine{task: task, state: Pending, r: r}
	policy := r.newBackOff()
	policy.Reset()

	for {
		switch m.state {
		case Pending:
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("task %s not started: %w", task, err)
			}
			m.to(Running, nil, 0)

		case Running:
			m.attempt++
			out, err := r.invoke(ctx, fn, m.attempt)
			if err == nil {
				m.to(Succeeded, nil, 0)
				return out, nil
			}
			m.lastErr = err
			m.to(Failed, err, 0)

		case Failed:
			delay := policy.NextBackOff()
			if delay == backoff.Stop {
				exhausted := &ExhaustedError{Task: task, Attempts: m.attempt, Err: m.lastErr}
				m.to(FatallyFailed, exhausted, 0)
				return "", exhausted
			}
			if err := r.sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("task %s stopped after %d attempts (last error: %v): %w", task, m.attempt, m.lastErr, err)
			}
			m.to(Running, nil, delay)

		default:
			return "", fmt.Errorf("task %s: unexpected state %s", task, m.state)
		}
	}
}

// invoke runs a single attempt detached from ctx cancellation, bounded by
// the attempt timeout. A panic is converted into an attempt failure.
func (r *Runner) invoke(ctx context.Context, fn Attempt, attempt int) (out string, err error) {
	attemptCtx := context.WithoutCancel(ctx)
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("attempt %d panicked: %v", attempt, p)
		}
	}()

	return fn(attemptCtx, attempt)
}

func (r *Runner) report(t Transition) {
	switch t.To {
	case Running:
		r.logger.Info("Task attempt starting", "task", t.Task, "attempt", t.Attempt+1, "max_attempts", r.cfg.MaxRetries, "delay", t.Delay)
	case Succeeded:
		r.logger.Info("Task succeeded", "task", t.Task, "attempt", t.Attempt)
	case Failed:
		r.logger.Warn("Task attempt failed", "task", t.Task, "attempt", t.Attempt, "error", t.Err)
	case FatallyFailed:
		r.logger.Error("Task failed, giving up", "task", t.Task, "attempts", t.Attempt, "error", t.Err)
	}
	for _, o := range r.observers {
		o.OnTransition(t)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
