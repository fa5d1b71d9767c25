package config

import (
	"errors"
	"fmt"
)

// ErrMissingCredential marks a validation failure caused by an absent
// account credential.
var ErrMissingCredential = errors.New("missing credential")

// ValidationError describes one invalid configuration field. It is returned
// before any scheduling starts.
type ValidationError struct {
	Field  string
	Reason string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap exposes the sentinel cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.err
}
