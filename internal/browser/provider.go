// Package browser provides the reusable browsing context the agent drives.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/domain"
)

// Provider hands out the single browsing context used by a pipeline run.
type Provider interface {
	// Acquire makes the browsing context available and returns its handle.
	Acquire(ctx context.Context) (domain.BrowserContext, error)

	// Release is called once after a pipeline run finishes.
	Release(ctx context.Context) error
}

// StaticProvider passes a fixed endpoint through. An empty endpoint means
// the agent manages its own browser.
type StaticProvider struct {
	endpoint string
}

// NewStatic creates a StaticProvider.
func NewStatic(endpoint string) *StaticProvider {
	return &StaticProvider{endpoint: endpoint}
}

// Acquire implements Provider.
func (p *StaticProvider) Acquire(context.Context) (domain.BrowserContext, error) {
	return domain.BrowserContext{ID: "static", Endpoint: p.endpoint}, nil
}

// Release implements Provider.
func (p *StaticProvider) Release(context.Context) error {
	return nil
}

// New builds the provider selected by cfg.Mode.
func New(cfg config.BrowserConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Mode {
	case "", config.BrowserModeStatic:
		return NewStatic(cfg.Endpoint), nil
	case config.BrowserModeDocker:
		return NewDockerProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
}

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*DockerProvider)(nil)
)
