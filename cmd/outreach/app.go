package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ashureev/outreach-agent/internal/agent"
	"github.com/ashureev/outreach-agent/internal/browser"
	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/events"
	"github.com/ashureev/outreach-agent/internal/filter"
	"github.com/ashureev/outreach-agent/internal/ingest"
	"github.com/ashureev/outreach-agent/internal/instruction"
	"github.com/ashureev/outreach-agent/internal/logging"
	"github.com/ashureev/outreach-agent/internal/metrics"
	"github.com/ashureev/outreach-agent/internal/notify"
	"github.com/ashureev/outreach-agent/internal/outreach"
	"github.com/ashureev/outreach-agent/internal/runner"
	"github.com/ashureev/outreach-agent/internal/session"
	"github.com/ashureev/outreach-agent/internal/store"
)

const eventBacklog = 256

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *store.SQLiteStore
	session  *session.Cache
	agent    *agent.GrpcClient
	browser  browser.Provider
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	hub      *events.Hub
	pipeline *outreach.Pipeline

	closers []func() error
}

// newApp loads configuration and wires every component. Nothing touches
// the network until a run starts.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Journal: cfg.LogJournal})
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, logCloser.Close)

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	repo, err := store.NewSQLite(cfg.DBPath, store.WithLocation(cfg.Location))
	if err != nil {
		return fmt.Errorf("initialize history store: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	a.logger.Info("Database connected", "path", cfg.DBPath)

	a.session = session.NewCache(cfg.SessionFile, cfg.SessionMaxAge, a.logger)

	agentCfg := agent.DefaultGrpcClientConfig()
	agentCfg.Address = cfg.AgentAddr
	client, err := agent.NewGrpcClient(agentCfg, a.logger)
	if err != nil {
		return fmt.Errorf("initialize agent client: %w", err)
	}
	a.agent = client
	a.closers = append(a.closers, func() error { client.Close(); return nil })

	provider, err := browser.New(cfg.Browser, a.logger)
	if err != nil {
		return fmt.Errorf("initialize browser provider: %w", err)
	}
	a.browser = provider
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.MustNewMetrics(a.registry)
	a.hub = events.NewHub(eventBacklog, a.logger)

	builder := instruction.NewBuilder(instruction.Options{
		Credentials: cfg.Credentials,
		GitHubURL:   cfg.GitHubURL,
		MaxItems:    cfg.MaxItemsPerRun,
	})

	a.pipeline = outreach.New(outreach.Deps{
		Filter:   filter.NewEngine(cfg.Filter, repo),
		Session:  a.session,
		Builder:  builder,
		Agent:    client,
		Browser:  provider,
		Recorder: ingest.NewRecorder(repo, a.logger),
		Notifier: notify.FromConfig(cfg.Notify, a.logger, a.metrics),
		Events:   a.hub,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}, outreach.Options{
		Tasks:  cfg.Tasks,
		DryRun: cfg.DryRun,
		Retry: runner.Config{
			MaxRetries:     cfg.Retry.MaxRetries,
			Delay:          cfg.Retry.Delay,
			Policy:         cfg.Retry.Policy,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
		},
	})

	a.logger.Info("Outreach agent configured",
		"tasks", cfg.Tasks,
		"dry_run", cfg.DryRun,
		"schedule", cfg.ScheduleLabel(),
		"agent_addr", cfg.AgentAddr,
		"browser_mode", cfg.Browser.Mode,
		"notify", cfg.Notify,
	)
	return nil
}

// checkAgent logs whether the agent is reachable. An unreachable agent is
// not fatal: calls wait for it and fail into the retry policy.
func (a *app) checkAgent(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, agent.DefaultGrpcClientConfig().ConnectTimeout)
	defer cancel()
	if err := a.agent.Ready(ctx); err != nil {
		a.logger.Warn("Agent not ready yet", "addr", a.cfg.AgentAddr, "error", err)
		return
	}
	a.logger.Info("Agent ready", "addr", a.cfg.AgentAddr)
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
