package tts

import (
	"errors"
	"strings"
	"testing"

	"github.com/alouette/tts/pkg/tts/engine"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		expected bool
	}{
		{StateUninitialized, StateInitializing, true},
		{StateUninitialized, StateReady, false},
		{StateInitializing, StateReady, true},
		{StateInitializing, StateError, true},
		{StateReady, StateSpeaking, true},
		{StateReady, StatePaused, false},
		{StateSpeaking, StatePaused, true},
		{StatePaused, StateSpeaking, true},
		{StatePaused, StateReady, true},
		{StateError, StateInitializing, true},
		{StateError, StateReady, false},
		{StateReady, StateDisposed, true},
		{StateSpeaking, StateDisposed, true},
		{StateDisposed, StateReady, false},
		{StateDisposed, StateInitializing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%v, %v) = %v, expected %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUninitialized, "uninitialized"},
		{StateSpeaking, "speaking"},
		{StateDisposed, "disposed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}

func TestError(t *testing.T) {
	cause := errors.New("edge-tts exited with status 1")
	err := newError("speak", engine.ProcessEngine, ErrSynthesis, cause)

	if !errors.Is(err, ErrSynthesis) {
		t.Error("errors.Is(err, ErrSynthesis) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrIO) {
		t.Error("errors.Is(err, ErrIO) = true, expected a single kind")
	}
	if Kind(err) != ErrSynthesis {
		t.Errorf("Kind() = %v, expected ErrSynthesis", Kind(err))
	}
	if Kind(cause) != nil {
		t.Errorf("Kind(plain error) = %v, expected nil", Kind(cause))
	}

	msg := err.Error()
	for _, part := range []string{"speak", "[process]", "synthesis failed", "status 1"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}

	// A stopped synthesis names the stop only once.
	stopped := newError("synthesize", "", ErrSynthesis, ErrStopped)
	if strings.Count(stopped.Error(), "stopped") != 1 {
		t.Errorf("Error() = %q", stopped.Error())
	}
}
