package tts

import (
	"fmt"

	"github.com/alouette/tts/pkg/tts/engine"
)

// Config holds the speech parameters applied to every operation. It is a
// value type: the With methods return modified copies.
type Config struct {
	SpeechRate  float64 `yaml:"rate" json:"rate" mapstructure:"rate"`
	Pitch       float64 `yaml:"pitch" json:"pitch" mapstructure:"pitch"`
	Volume      float64 `yaml:"volume" json:"volume" mapstructure:"volume"`
	VoiceID     string  `yaml:"voice" json:"voice,omitempty" mapstructure:"voice"`
	AudioFormat string  `yaml:"format" json:"format,omitempty" mapstructure:"format"`
}

// DefaultConfig returns neutral speech parameters and the engine's own
// voice and format.
func DefaultConfig() Config {
	return Config{SpeechRate: 1, Pitch: 1, Volume: 1}
}

func (c Config) WithSpeechRate(rate float64) Config { c.SpeechRate = rate; return c }
func (c Config) WithPitch(pitch float64) Config     { c.Pitch = pitch; return c }
func (c Config) WithVolume(volume float64) Config   { c.Volume = volume; return c }
func (c Config) WithVoice(id string) Config         { c.VoiceID = id; return c }
func (c Config) WithFormat(format string) Config    { c.AudioFormat = format; return c }

// Clamp limits the numeric fields to the engine's ranges, or to the global
// bounds when caps is nil.
func (c Config) Clamp(caps *engine.Capabilities) Config {
	rate, pitch := engine.GlobalRateRange, engine.GlobalPitchRange
	if caps != nil {
		if caps.RateRange.Max > 0 {
			rate = caps.RateRange
		}
		if caps.PitchRange.Max > 0 {
			pitch = caps.PitchRange
		}
	}
	c.SpeechRate = rate.Clamp(c.SpeechRate)
	c.Pitch = pitch.Clamp(c.Pitch)
	c.Volume = engine.GlobalVolumeRange.Clamp(c.Volume)
	return c
}

func (c Config) prosody() *engine.Prosody {
	return &engine.Prosody{Rate: c.SpeechRate, Pitch: c.Pitch, Volume: c.Volume}
}

func (c Config) String() string {
	return fmt.Sprintf("Config{Rate: %.2f, Pitch: %.2f, Volume: %.2f, Voice: %q, Format: %q}",
		c.SpeechRate, c.Pitch, c.Volume, c.VoiceID, c.AudioFormat)
}

// Option overrides configuration for a single operation.
type Option func(*Config)

// WithRate sets the speech rate for one operation.
func WithRate(rate float64) Option {
	return func(c *Config) { c.SpeechRate = rate }
}

// WithPitch sets the pitch for one operation.
func WithPitch(pitch float64) Option {
	return func(c *Config) { c.Pitch = pitch }
}

// WithVolume sets the volume for one operation.
func WithVolume(volume float64) Option {
	return func(c *Config) { c.Volume = volume }
}

// WithVoice selects a voice for one operation.
func WithVoice(id string) Option {
	return func(c *Config) { c.VoiceID = id }
}

// WithFormat selects the output format for one operation.
func WithFormat(format string) Option {
	return func(c *Config) { c.AudioFormat = format }
}

func (c Config) apply(opts []Option) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
