// Package engine defines the speech engine adapter contract together with
// the capability matrix and the factory that selects and constructs engines
// with ordered fallback.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/alouette/tts/pkg/tts/platform"
)

// ID identifies an engine implementation.
type ID string

const (
	// ProcessEngine synthesizes through the edge-tts executable.
	ProcessEngine ID = "process"
	// NativeEngine synthesizes through the operating system speech API.
	NativeEngine ID = "native"
)

func (id ID) String() string {
	return string(id)
}

// ParseID resolves an engine name, accepting a few common aliases.
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "process", "edge", "edge-tts":
		return ProcessEngine, nil
	case "native", "system", "os":
		return NativeEngine, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// Gender of a voice.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUnspecified Gender = "unspecified"
)

// ParseGender maps free-form gender labels reported by backends.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	}
	return GenderUnspecified
}

// Quality of a voice.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityNeural   Quality = "neural"
)

// Voice describes one voice offered by an engine.
type Voice struct {
	ID           string  `json:"id" yaml:"id"`
	DisplayName  string  `json:"display_name" yaml:"display_name"`
	LanguageCode string  `json:"language_code" yaml:"language_code"`
	Gender       Gender  `json:"gender" yaml:"gender"`
	Quality      Quality `json:"quality" yaml:"quality"`
	IsNeural     bool    `json:"is_neural" yaml:"is_neural"`
}

// Info describes an engine instance.
type Info struct {
	ID           ID
	Name         string
	Version      string
	Platform     platform.Platform
	Capabilities Capabilities
}

// Prosody carries the speech parameters for one request. Rate and Pitch are
// multipliers centred on 1.0; Volume is in [0, 1].
type Prosody struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// SynthesisRequest is one synthesis call against an adapter.
type SynthesisRequest struct {
	Text    string
	SSML    bool
	VoiceID string
	Format  string

	// Prosody overrides the values set through SetSpeechRate, SetPitch and
	// SetVolume for this request only.
	Prosody *Prosody
}

// Adapter is the contract every speech backend implements. Adapters are
// owned by a single service and need not be safe for concurrent use unless
// their capabilities report concurrent synthesis, except for Stop which may
// be called from any goroutine.
type Adapter interface {
	Info() Info

	// Initialize prepares the backend. It is called once by the factory.
	Initialize(ctx context.Context) error
	IsInitialized() bool

	// IsAvailable is a liveness check that never returns an error.
	IsAvailable(ctx context.Context) bool

	Voices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)

	// Stop aborts any in-flight synthesis. It is idempotent.
	Stop() error

	SetSpeechRate(rate float64) error
	SetPitch(pitch float64) error
	SetVolume(volume float64) error

	// Dispose releases backend resources. The adapter is unusable after.
	Dispose() error
}
