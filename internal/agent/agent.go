// Package agent talks to the external browser-automation agent.
package agent

import (
	"context"
	"errors"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// ErrEmptySummary is returned when the agent finishes without any final
// text.
var ErrEmptySummary = errors.New("agent returned an empty summary")

// TaskRequest is one invocation of the browser agent.
type TaskRequest struct {
	RunID       string
	Task        domain.TaskKind
	Instruction string
	Browser     domain.BrowserContext
	DryRun      bool
}

// BrowserAgent runs one natural-language task against a browser and returns
// the agent's free-text final summary. Any failure is returned as an error.
type BrowserAgent interface {
	Run(ctx context.Context, req TaskRequest) (string, error)
}

// Func adapts a function to BrowserAgent.
type Func func(ctx context.Context, req TaskRequest) (string, error)

// Run implements BrowserAgent.
func (f Func) Run(ctx context.Context, req TaskRequest) (string, error) {
	return f(ctx, req)
}

// RemoteError is an error reported by the agent itself, as opposed to a
// transport failure.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "agent error: " + e.Message
}
