// Package runner executes one external agent invocation under a bounded
// retry policy.
package runner

import (
	"fmt"
	"time"
)

// State is a step of the per-invocation state machine:
//
//	Pending -> Running -> Succeeded
//	                   -> Failed -> Running        (delay granted)
//	                             -> FatallyFailed  (policy exhausted)
type State int

const (
	// Pending is the state before the first attempt.
	Pending State = iota
	// Running means an attempt is in flight.
	Running
	// Succeeded is terminal: an attempt returned without error.
	Succeeded
	// Failed means the last attempt errored and a retry may follow.
	Failed
	// FatallyFailed is terminal: the attempt budget is spent.
	FatallyFailed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case FatallyFailed:
		return "fatally_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Succeeded || s == FatallyFailed
}

// Transition is reported to observers every time the state changes.
type Transition struct {
	Task    string
	Attempt int
	From    State
	To      State
	Err     error
	Delay   time.Duration
	At      time.Time
}

// Observer receives state transitions.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(t Transition) { f(t) }

// ExhaustedError is returned once the retry policy gives up. It carries the
// last attempt's error.
type ExhaustedError struct {
	Task     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.Task, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
