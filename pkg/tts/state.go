package tts

// State is the lifecycle state of a Service.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateSpeaking
	StatePaused
	StateError
	StateDisposed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// transitions lists the valid successors of each state. Every state may
// move to disposed.
var transitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateReady, StateError},
	StateReady:         {StateSpeaking, StateInitializing},
	StateSpeaking:      {StateReady, StatePaused},
	StatePaused:        {StateSpeaking, StateReady},
	StateError:         {StateInitializing},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if from == StateDisposed {
		return false
	}
	if to == StateDisposed || from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether playback or synthesis is in flight.
func (s State) IsActive() bool {
	return s == StateSpeaking || s == StatePaused
}
