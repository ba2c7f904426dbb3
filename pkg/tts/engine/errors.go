package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable reports that no engine could be constructed.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrSynthesis reports a failed or timed out synthesis call.
	ErrSynthesis = errors.New("synthesis failed")

	// ErrNotInitialized is returned by adapters used before Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrUnsupported is returned by adapters asked for something their
	// capabilities do not include.
	ErrUnsupported = errors.New("unsupported by engine")

	// ErrStopped is returned by an adapter whose synthesis was aborted by Stop.
	ErrStopped = errors.New("synthesis stopped")
)

// Error records which engine failed during which step.
type Error struct {
	Engine ID
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s engine %s: %v", e.Engine, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapUnavailable tags err with ErrEngineUnavailable while keeping the cause.
func wrapUnavailable(id ID, op string, cause error) error {
	if cause == nil {
		cause = ErrEngineUnavailable
	} else if !errors.Is(cause, ErrEngineUnavailable) {
		cause = fmt.Errorf("%w: %w", ErrEngineUnavailable, cause)
	}
	return &Error{Engine: id, Op: op, Err: cause}
}
