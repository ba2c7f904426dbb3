package tts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alouette/tts/pkg/tts/engine"
)

// Error kinds. Every error returned by a Service matches exactly one of
// these with errors.Is.
var (
	ErrInitialization       = errors.New("initialization failed")
	ErrEngineUnavailable    = engine.ErrEngineUnavailable
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrOperationInProgress  = errors.New("operation in progress")
	ErrSynthesis            = engine.ErrSynthesis
	ErrIO                   = errors.New("i/o failure")
	ErrDisposed             = errors.New("service disposed")

	// ErrStopped is returned by SynthesizeToAudio and batch items that were
	// cut short by Stop. Speak returns nil in that case.
	ErrStopped = engine.ErrStopped
)

// Error provides detailed error information.
type Error struct {
	Op     string    // Service operation, e.g. "speak"
	Engine engine.ID // Active engine, if any
	Kind   error     // One of the Err* kinds
	Cause  error     // Underlying error, may be nil
}

func newError(op string, id engine.ID, kind, cause error) *Error {
	return &Error{Op: op, Engine: id, Kind: kind, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("tts: ")
	b.WriteString(e.Op)
	if e.Engine != "" {
		fmt.Fprintf(&b, " [%s]", e.Engine)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Cause != nil && !errors.Is(e.Kind, e.Cause) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Kind returns the error kind of err, or nil if err did not come from a
// Service.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
