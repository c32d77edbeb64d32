package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// StateError is returned when an illegal state-machine transition is
// attempted. The entity is left unchanged; the error names both the current
// state and the attempted one so callers can render an actionable message.
type StateError struct {
	Entity    string
	ID        string
	Current   string
	Attempted string
}

func NewStateError(entity, id, current, attempted string) error {
	return &StateError{Entity: entity, ID: id, Current: current, Attempted: attempted}
}

func (err *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot transition from %s to %s", err.Entity, err.ID, err.Current, err.Attempted)
}

func IsStateError(err error) bool {
	_, ok := errors.Cause(err).(*StateError)
	return ok
}

// ExternalError wraps a failure reported by an external capability
// (card charge, notification send). It is surfaced verbatim; no retries.
type ExternalError struct {
	Op  string
	Err error
}

func NewExternalError(op string, err error) error {
	return &ExternalError{Op: op, Err: err}
}

func (err *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", err.Op, err.Err)
}

func (err *ExternalError) Unwrap() error { return err.Err }

func IsExternal(err error) bool {
	_, ok := errors.Cause(err).(*ExternalError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
