package engine

import (
	"math"
	"slices"
	"time"

	"github.com/alouette/tts/pkg/tts/platform"
)

// Feature names a boolean engine capability.
type Feature string

const (
	FeatureSSML                Feature = "ssml"
	FeaturePauseResume         Feature = "pause_resume"
	FeatureRateControl         Feature = "rate_control"
	FeaturePitchControl        Feature = "pitch_control"
	FeatureVolumeControl       Feature = "volume_control"
	FeatureConcurrentSynthesis Feature = "concurrent_synthesis"
)

// Range is a closed numeric interval.
type Range struct {
	Min float64
	Max float64
}

// Clamp limits v to the range. NaN maps to the neutral value 1, itself
// clamped.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		v = 1
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Global parameter bounds, used when no engine is active.
var (
	GlobalRateRange   = Range{Min: 0.1, Max: 3.0}
	GlobalPitchRange  = Range{Min: 0.5, Max: 2.0}
	GlobalVolumeRange = Range{Min: 0, Max: 1}
)

// Capabilities describe what an engine can do on a given platform.
type Capabilities struct {
	SupportsSSML                bool
	SupportsPauseResume         bool
	SupportsRateControl         bool
	SupportsPitchControl        bool
	SupportsVolumeControl       bool
	SupportsConcurrentSynthesis bool

	MaxTextLength int
	AudioFormats  []string
	RateRange     Range
	PitchRange    Range

	// Timeout bounds every adapter call.
	Timeout time.Duration

	// Available is false once a probe or construction attempt failed.
	Available bool
}

// Supports reports whether the feature flag is set.
func (c Capabilities) Supports(f Feature) bool {
	switch f {
	case FeatureSSML:
		return c.SupportsSSML
	case FeaturePauseResume:
		return c.SupportsPauseResume
	case FeatureRateControl:
		return c.SupportsRateControl
	case FeaturePitchControl:
		return c.SupportsPitchControl
	case FeatureVolumeControl:
		return c.SupportsVolumeControl
	case FeatureConcurrentSynthesis:
		return c.SupportsConcurrentSynthesis
	}
	return false
}

// SupportsFormat reports whether format is one of the output formats.
func (c Capabilities) SupportsFormat(format string) bool {
	return slices.Contains(c.AudioFormats, format)
}

// DefaultFormat is the first supported output format.
func (c Capabilities) DefaultFormat() string {
	if len(c.AudioFormats) == 0 {
		return ""
	}
	return c.AudioFormats[0]
}

func (c Capabilities) clone() Capabilities {
	c.AudioFormats = slices.Clone(c.AudioFormats)
	return c
}

// Audio formats produced by the built-in engines.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

var processCapabilities = Capabilities{
	SupportsPauseResume:   true,
	SupportsRateControl:   true,
	SupportsPitchControl:  true,
	SupportsVolumeControl: true,
	MaxTextLength:         5000,
	AudioFormats:          []string{FormatMP3},
	RateRange:             Range{Min: 0.5, Max: 2.0},
	PitchRange:            Range{Min: 0.5, Max: 1.5},
	Timeout:               30 * time.Second,
	Available:             true,
}

func nativeCapabilities(p platform.Platform) Capabilities {
	caps := Capabilities{
		SupportsPauseResume:   true,
		SupportsRateControl:   true,
		SupportsVolumeControl: true,
		MaxTextLength:         10000,
		AudioFormats:          []string{FormatWAV},
		RateRange:             Range{Min: 0.5, Max: 2.0},
		PitchRange:            Range{Min: 1, Max: 1},
		Timeout:               20 * time.Second,
		Available:             true,
	}

	switch p {
	case platform.DesktopLinux:
		// espeak-ng runs one process per call.
		caps.SupportsSSML = true
		caps.SupportsPitchControl = true
		caps.SupportsConcurrentSynthesis = true
		caps.RateRange = Range{Min: 0.5, Max: 2.5}
		caps.PitchRange = Range{Min: 0.5, Max: 2.0}
	case platform.DesktopMacOS:
		caps.SupportsConcurrentSynthesis = true
	case platform.DesktopWindows:
		caps.SupportsSSML = true
	case platform.MobileAndroid:
		caps.SupportsSSML = true
		caps.SupportsPitchControl = true
		caps.SupportsPauseResume = false
		caps.MaxTextLength = 4000
		caps.PitchRange = Range{Min: 0.5, Max: 2.0}
	case platform.MobileIOS:
		caps.SupportsSSML = true
		caps.SupportsPitchControl = true
		caps.PitchRange = Range{Min: 0.5, Max: 2.0}
	case platform.Web:
		caps.SupportsPitchControl = true
		caps.MaxTextLength = 32767
		caps.RateRange = Range{Min: 0.1, Max: 3.0}
		caps.PitchRange = Range{Min: 0.5, Max: 2.0}
	}
	return caps
}

// DefaultTable returns the static capability table for every platform.
func DefaultTable() map[platform.Platform]map[ID]Capabilities {
	table := make(map[platform.Platform]map[ID]Capabilities, len(platform.All))
	for _, p := range platform.All {
		row := map[ID]Capabilities{NativeEngine: nativeCapabilities(p)}
		if p.IsDesktop() {
			row[ProcessEngine] = processCapabilities.clone()
		}
		table[p] = row
	}
	return table
}

// DefaultOrder returns the candidate order for a platform.
func DefaultOrder(p platform.Platform) []ID {
	if p.IsDesktop() {
		return []ID{ProcessEngine, NativeEngine}
	}
	return []ID{NativeEngine}
}
