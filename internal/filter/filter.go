// Package filter decides which contacts the agent may act on.
//
// Enforcement happens inside the external agent; this package only computes
// the filter sets that are spelled out in its instructions.
package filter

import (
	"context"
	"fmt"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/domain"
)

// IsAllowed applies the blacklist and whitelist to name. The blacklist
// always wins; a non-empty whitelist admits only its members.
func IsAllowed(name string, blacklist, whitelist domain.NameSet) bool {
	if blacklist.Has(name) {
		return false
	}
	if len(whitelist) > 0 && !whitelist.Has(name) {
		return false
	}
	return true
}

// HistoryReader is the slice of the history store the engine needs.
type HistoryReader interface {
	RecentContacts(ctx context.Context, kind domain.TaskKind, days int) (domain.NameSet, error)
}

// Snapshot is the resolved filter state for one instruction build.
type Snapshot struct {
	Whitelist    []string
	Blacklist    []string
	Cooldown     []string
	CooldownDays int
}

// Engine combines the static lists with cooldown lookups.
type Engine struct {
	cfg     config.FilterConfig
	history HistoryReader
}

// NewEngine creates a filter engine.
func NewEngine(cfg config.FilterConfig, history HistoryReader) *Engine {
	if cfg.Whitelist == nil {
		cfg.Whitelist = domain.NewNameSet()
	}
	if cfg.Blacklist == nil {
		cfg.Blacklist = domain.NewNameSet()
	}
	return &Engine{cfg: cfg, history: history}
}

// IsAllowed applies the configured lists to name.
func (e *Engine) IsAllowed(name string) bool {
	return IsAllowed(name, e.cfg.Blacklist, e.cfg.Whitelist)
}

// OnCooldown reports whether name was acted on for kind within the
// configured cooldown window.
func (e *Engine) OnCooldown(ctx context.Context, name string, kind domain.TaskKind) (bool, error) {
	recent, err := e.history.RecentContacts(ctx, kind, e.cfg.CooldownDays)
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return recent.Has(name), nil
}

// Snapshot resolves every list for kind. Cooldown names already on the
// blacklist are left out, and whitelist members that are blacklisted are
// dropped, so each name appears under exactly one rule.
func (e *Engine) Snapshot(ctx context.Context, kind domain.TaskKind) (Snapshot, error) {
	recent, err := e.history.RecentContacts(ctx, kind, e.cfg.CooldownDays)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cooldown lookup: %w", err)
	}

	snap := Snapshot{
		Blacklist:    e.cfg.Blacklist.Sorted(),
		CooldownDays: e.cfg.CooldownDays,
	}
	for _, n := range e.cfg.Whitelist.Sorted() {
		if !e.cfg.Blacklist.Has(n) {
			snap.Whitelist = append(snap.Whitelist, n)
		}
	}
	for _, n := range recent.Sorted() {
		if !e.cfg.Blacklist.Has(n) {
			snap.Cooldown = append(snap.Cooldown, n)
		}
	}
	return snap, nil
}
