// Package outreach wires the filter, session, instruction, agent, ingest
// and notification steps into task runs.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/outreach-agent/internal/agent"
	"github.com/ashureev/outreach-agent/internal/browser"
	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/events"
	"github.com/ashureev/outreach-agent/internal/filter"
	"github.com/ashureev/outreach-agent/internal/ingest"
	"github.com/ashureev/outreach-agent/internal/instruction"
	"github.com/ashureev/outreach-agent/internal/metrics"
	"github.com/ashureev/outreach-agent/internal/notify"
	"github.com/ashureev/outreach-agent/internal/runner"
)

var (
	// ErrBusy is returned when a run is requested while another one holds
	// the browsing context.
	ErrBusy = errors.New("another run is in progress")

	// ErrLoginRequired marks an attempt where the agent found the session
	// logged out. The next attempt logs in with credentials.
	ErrLoginRequired = errors.New("agent reported that a login is required")
)

// SessionCache is the session freshness store.
type SessionCache interface {
	IsValid() bool
	MarkFresh() error
}

// Notifier delivers run digests.
type Notifier interface {
	Dispatch(ctx context.Context, s notify.Summary)
}

// Publisher receives pipeline events.
type Publisher interface {
	Publish(e events.Event) events.Event
}

// Deps are the collaborators of a Pipeline. Events and Metrics are
// optional.
type Deps struct {
	Filter   *filter.Engine
	Session  SessionCache
	Builder  *instruction.Builder
	Agent    agent.BrowserAgent
	Browser  browser.Provider
	Recorder *ingest.Recorder
	Notifier Notifier
	Events   Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Options configures a Pipeline.
type Options struct {
	Tasks  []domain.TaskKind
	DryRun bool
	Retry  runner.Config
	// RunnerOptions are passed to every task runner.
	RunnerOptions []runner.Option
}

// Result describes one finished task run.
type Result struct {
	RunID      string            `json:"run_id"`
	Task       domain.TaskKind   `json:"task"`
	DryRun     bool              `json:"dry_run"`
	Outcome    domain.RunOutcome `json:"outcome"`
	Recorded   int               `json:"recorded"`
	Detail     string            `json:"detail,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Pipeline runs tasks one at a time against the single browsing context.
type Pipeline struct {
	deps Deps
	opts Options

	runMu   sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup

	lastMu sync.RWMutex
	last   map[domain.TaskKind]Result
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}
	if deps.Browser == nil {
		deps.Browser = browser.NewStatic("")
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		last: make(map[domain.TaskKind]Result),
	}
}

// Tasks returns the configured daily task order.
func (p *Pipeline) Tasks() []domain.TaskKind {
	return append([]domain.TaskKind(nil), p.opts.Tasks...)
}

// RunDaily runs every configured task in order. A failed task does not
// stop the ones after it; a stop signal on ctx does. It returns ErrBusy
// without running anything when another run is in progress.
func (p *Pipeline) RunDaily(ctx context.Context) error {
	if !p.acquire("daily") {
		return ErrBusy
	}
	defer p.release()
	return p.runDaily(ctx)
}

func (p *Pipeline) runDaily(ctx context.Context) error {
	p.deps.Events.Publish(events.Event{Type: events.DailyStarted, Message: joinKinds(p.opts.Tasks)})
	p.deps.Logger.Info("Daily pipeline starting", "tasks", joinKinds(p.opts.Tasks), "dry_run", p.opts.DryRun)

	return p.withBrowser(ctx, func(bc domain.BrowserContext) error {
		var errs []error
		for _, kind := range p.opts.Tasks {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("pipeline stopped before %s: %w", kind, err))
				break
			}
			if _, err := p.execute(ctx, kind, bc); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// RunTask runs a single task now.
func (p *Pipeline) RunTask(ctx context.Context, kind domain.TaskKind) (Result, error) {
	if !p.acquire(string(kind)) {
		return Result{}, ErrBusy
	}
	defer p.release()

	var res Result
	err := p.withBrowser(ctx, func(bc domain.BrowserContext) error {
		var err error
		res, err = p.execute(ctx, kind, bc)
		return err
	})
	return res, err
}

// StartTask claims the pipeline and runs kind in the background. It fails
// fast with ErrBusy when a run is in progress.
func (p *Pipeline) StartTask(ctx context.Context, kind domain.TaskKind) error {
	return p.start(string(kind), func() {
		_ = p.withBrowser(ctx, func(bc domain.BrowserContext) error {
			_, err := p.execute(ctx, kind, bc)
			return err
		})
	})
}

// StartDaily runs the daily task list in the background.
func (p *Pipeline) StartDaily(ctx context.Context) error {
	return p.start("daily", func() {
		if err := p.runDaily(ctx); err != nil {
			p.deps.Logger.Error("Daily pipeline finished with errors", "error", err)
		}
	})
}

func (p *Pipeline) start(name string, fn func()) error {
	if !p.acquire(name) {
		return ErrBusy
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		fn()
	}()
	return nil
}

// acquire claims the pipeline for one run, or records a rejection.
func (p *Pipeline) acquire(name string) bool {
	if !p.runMu.TryLock() {
		p.reject(name)
		return false
	}
	p.running.Store(true)
	return true
}

func (p *Pipeline) release() {
	p.running.Store(false)
	p.runMu.Unlock()
}

// Wait blocks until background runs started by StartTask have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Running reports whether a run currently holds the pipeline.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastResults returns the most recent result of each task kind that ran.
func (p *Pipeline) LastResults() []Result {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	out := make([]Result, 0, len(p.last))
	for _, kind := range domain.TaskKinds {
		if r, ok := p.last[kind]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (p *Pipeline) withBrowser(ctx context.Context, fn func(domain.BrowserContext) error) error {
	bc, err := p.deps.Browser.Acquire(ctx)
	if err != nil {
		p.deps.Logger.Error("Browser context unavailable", "error", err)
		return fmt.Errorf("acquire browser: %w", err)
	}
	defer func() {
		if err := p.deps.Browser.Release(context.WithoutCancel(ctx)); err != nil {
			p.deps.Logger.Warn("Failed to release browser context", "error", err)
		}
	}()
	return fn(bc)
}

// execute runs one task under the retry policy, then records and reports
// the outcome.
func (p *Pipeline) execute(ctx context.Context, kind domain.TaskKind, bc domain.BrowserContext) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		Task:      kind,
		DryRun:    p.opts.DryRun,
		StartedAt: time.Now(),
	}
	logger := p.deps.Logger.With("run_id", res.RunID, "task", kind)

	p.deps.Metrics.RunStarted()
	p.deps.Events.Publish(events.Event{Type: events.RunStarted, RunID: res.RunID, Task: kind})
	logger.Info("Task run starting", "dry_run", p.opts.DryRun, "browser_context", bc.ID)

	r := p.newRunner(res.RunID, kind, logger)
	forceLogin := false

	summary, err := r.Run(ctx, string(kind), func(attemptCtx context.Context, _ int) (string, error) {
		return p.attempt(attemptCtx, kind, bc, res.RunID, &forceLogin, logger)
	})

	// Post-processing runs even when shutdown begins: the agent may already
	// have acted.
	post := context.WithoutCancel(ctx)
	if err != nil {
		return p.fail(post, res, err, logger)
	}
	return p.succeed(post, res, summary, logger), nil
}

func (p *Pipeline) attempt(ctx context.Context, kind domain.TaskKind, bc domain.BrowserContext, runID string, forceLogin *bool, logger *slog.Logger) (string, error) {
	snapshot, err := p.deps.Filter.Snapshot(ctx, kind)
	if err != nil {
		return "", err
	}

	loggedIn := false
	if kind.RequiresLogin() && !*forceLogin {
		loggedIn = p.deps.Session.IsValid()
	}

	text, err := p.deps.Builder.Build(kind, instruction.State{
		LoggedIn: loggedIn,
		DryRun:   p.opts.DryRun,
		Filter:   snapshot,
	})
	if err != nil {
		return "", fmt.Errorf("build instruction: %w", err)
	}
	logger.Debug("Instruction built",
		"logged_in", loggedIn,
		"blacklist", len(snapshot.Blacklist),
		"whitelist", len(snapshot.Whitelist),
		"cooldown", len(snapshot.Cooldown),
	)

	summary, err := p.deps.Agent.Run(ctx, agent.TaskRequest{
		RunID:       runID,
		Task:        kind,
		Instruction: text,
		Browser:     bc,
		DryRun:      p.opts.DryRun,
	})
	if err != nil {
		return "", err
	}

	if kind.RequiresLogin() {
		if strings.Contains(strings.ToUpper(summary), instruction.LoginRequiredMarker) {
			*forceLogin = true
			return "", ErrLoginRequired
		}
		if err := p.deps.Session.MarkFresh(); err != nil {
			logger.Warn("Failed to refresh session file", "error", err)
		}
	}
	return summary, nil
}

func (p *Pipeline) succeed(ctx context.Context, res Result, summary string, logger *slog.Logger) Result {
	res.Outcome = ingest.Parse(summary)
	kind := res.Task

	if kind == domain.TaskFollowerCheck {
		if n, ok := ingest.ParseFollowerCount(summary); ok {
			res.Detail = fmt.Sprintf("Followers: %d", n)
		} else {
			res.Detail = "Follower count not found in summary"
		}
	} else {
		n, err := p.deps.Recorder.Record(ctx, kind, res.Outcome, p.opts.DryRun)
		res.Recorded = n
		if err != nil {
			logger.Error("Failed to record history", "error", err, "recorded", n)
		}
		p.deps.Events.Publish(events.Event{
			Type:    events.HistoryWritten,
			RunID:   res.RunID,
			Task:    kind,
			Message: fmt.Sprintf("%d records", n),
		})
	}

	p.deps.Metrics.ContactsActed(string(kind), p.opts.DryRun, len(res.Outcome.Acted))
	p.deps.Metrics.ItemsSkipped(string(kind), res.Outcome.Skipped)

	p.deps.Notifier.Dispatch(ctx, notify.Summary{
		RunID:    res.RunID,
		Task:     kind,
		TaskName: kind.DisplayName(),
		Acted:    actedNames(res.Outcome),
		Skipped:  res.Outcome.Skipped,
		DryRun:   p.opts.DryRun,
		Detail:   res.Detail,
	})

	res.FinishedAt = time.Now()
	p.remember(res)
	p.deps.Metrics.RunFinished(string(kind), metrics.StatusSucceeded, res.FinishedAt.Sub(res.StartedAt))

	outcome := res.Outcome
	p.deps.Events.Publish(events.Event{Type: events.RunSucceeded, RunID: res.RunID, Task: kind, Outcome: &outcome, Message: res.Detail})
	logger.Info("Task run succeeded",
		"acted", len(res.Outcome.Acted),
		"skipped", res.Outcome.Skipped,
		"recorded", res.Recorded,
		"elapsed", res.FinishedAt.Sub(res.StartedAt),
	)
	return res
}

func (p *Pipeline) fail(ctx context.Context, res Result, err error, logger *slog.Logger) (Result, error) {
	kind := res.Task
	res.Error = err.Error()
	res.FinishedAt = time.Now()
	p.remember(res)

	p.deps.Metrics.RunFinished(string(kind), metrics.StatusFailed, res.FinishedAt.Sub(res.StartedAt))
	p.deps.Events.Publish(events.Event{Type: events.RunFailed, RunID: res.RunID, Task: kind, Message: res.Error})
	logger.Error("Task run failed", "error", err, "elapsed", res.FinishedAt.Sub(res.StartedAt))

	p.deps.Notifier.Dispatch(ctx, notify.Summary{
		RunID:    res.RunID,
		Task:     kind,
		TaskName: kind.DisplayName(),
		DryRun:   p.opts.DryRun,
		Err:      res.Error,
	})
	return res, fmt.Errorf("%s: %w", kind, err)
}

func (p *Pipeline) newRunner(runID string, kind domain.TaskKind, logger *slog.Logger) *runner.Runner {
	opts := append([]runner.Option{}, p.opts.RunnerOptions...)
	if p.deps.Metrics != nil {
		opts = append(opts, runner.WithObserver(p.deps.Metrics))
	}
	opts = append(opts, runner.WithObserver(runner.ObserverFunc(func(t runner.Transition) {
		switch t.To {
		case runner.Running:
			p.deps.Events.Publish(events.Event{Type: events.AttemptStarted, RunID: runID, Task: kind, Attempt: t.Attempt + 1})
		case runner.Failed:
			p.deps.Events.Publish(events.Event{Type: events.AttemptFailed, RunID: runID, Task: kind, Attempt: t.Attempt, Message: t.Err.Error()})
		}
	})))
	return runner.New(p.opts.Retry, logger, opts...)
}

func (p *Pipeline) reject(task string) {
	p.deps.Metrics.RunRejected(task, metrics.StatusBusy)
	p.deps.Events.Publish(events.Event{Type: events.RunRejected, Task: domain.TaskKind(task), Message: ErrBusy.Error()})
	p.deps.Logger.Warn("Run skipped, another run is in progress", "task", task)
}

func (p *Pipeline) remember(res Result) {
	p.lastMu.Lock()
	p.last[res.Task] = res
	p.lastMu.Unlock()
}

// actedNames prefers extracted contact names and falls back to the raw
// summary line.
func actedNames(o domain.RunOutcome) []string {
	names := make([]string, 0, len(o.Actions))
	for _, a := range o.Actions {
		if a.Contact != "" && !a.SkipReport {
			names = append(names, a.Contact)
		} else {
			names = append(names, a.Line)
		}
	}
	return names
}

func joinKinds(kinds []domain.TaskKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

type discardEvents struct{}

func (discardEvents) Publish(e events.Event) events.Event { return e }
