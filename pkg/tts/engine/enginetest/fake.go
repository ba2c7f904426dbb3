// Package enginetest provides an in-memory engine adapter for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/platform"
)

// Fake is a scriptable engine.Adapter.
type Fake struct {
	ID       engine.ID
	Platform platform.Platform
	Caps     engine.Capabilities

	// Unavailable makes IsAvailable report false.
	Unavailable bool
	InitErr     error
	VoiceList   []engine.Voice
	VoicesErr   error

	// Audio is returned by Synthesize unless SynthFunc is set.
	Audio      []byte
	SynthErr   error
	SynthDelay time.Duration
	SynthFunc  func(ctx context.Context, req engine.SynthesisRequest) ([]byte, error)

	mu           sync.Mutex
	initialized  bool
	disposed     bool
	stop         chan struct{}
	requests     []engine.SynthesisRequest
	initCalls    int
	voiceCalls   int
	stopCalls    int
	disposeCalls int
	rate         float64
	pitch        float64
	volume       float64
}

// New returns a fake with sensible capabilities for id.
func New(id engine.ID) *Fake {
	return &Fake{
		ID:       id,
		Platform: platform.DesktopLinux,
		Caps: engine.Capabilities{
			SupportsPauseResume:   true,
			SupportsRateControl:   true,
			SupportsPitchControl:  true,
			SupportsVolumeControl: true,
			MaxTextLength:         5000,
			AudioFormats:          []string{engine.FormatWAV},
			RateRange:             engine.Range{Min: 0.5, Max: 2.0},
			PitchRange:            engine.Range{Min: 0.5, Max: 2.0},
			Timeout:               time.Second,
			Available:             true,
		},
		Audio: []byte("RIFF-fake-audio"),
		VoiceList: []engine.Voice{
			{ID: string(id) + "-en", DisplayName: "English", LanguageCode: "en-US", Gender: engine.GenderFemale, Quality: engine.QualityStandard},
			{ID: string(id) + "-fr", DisplayName: "French", LanguageCode: "fr-FR", Gender: engine.GenderMale, Quality: engine.QualityStandard},
		},
	}
}

// Constructor returns a constructor that hands out f, adopting the caps
// computed by the matrix when keepCaps is false.
func Constructor(f *Fake, keepCaps bool) engine.Constructor {
	return func(p platform.Platform, caps engine.Capabilities) (engine.Adapter, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.Platform = p
		if !keepCaps {
			f.Caps = caps
		}
		f.disposed = false
		return f, nil
	}
}

func (f *Fake) Info() engine.Info {
	return engine.Info{ID: f.ID, Name: "fake " + string(f.ID), Version: "test", Platform: f.Platform, Capabilities: f.Caps}
}

func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.InitErr != nil {
		return f.InitErr
	}
	f.initialized = true
	return nil
}

func (f *Fake) IsInitialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *Fake) IsAvailable(ctx context.Context) bool {
	return !f.Unavailable
}

func (f *Fake) Voices(ctx context.Context) ([]engine.Voice, error) {
	f.mu.Lock()
	f.voiceCalls++
	f.mu.Unlock()
	if f.VoicesErr != nil {
		return nil, f.VoicesErr
	}
	out := make([]engine.Voice, len(f.VoiceList))
	copy(out, f.VoiceList)
	return out, nil
}

func (f *Fake) Synthesize(ctx context.Context, req engine.SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	if !f.initialized {
		f.mu.Unlock()
		return nil, engine.ErrNotInitialized
	}
	f.requests = append(f.requests, req)
	if f.stop == nil {
		f.stop = make(chan struct{})
	}
	stop := f.stop
	f.mu.Unlock()

	if f.SynthDelay > 0 {
		select {
		case <-time.After(f.SynthDelay):
		case <-stop:
			return nil, engine.ErrStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.SynthFunc != nil {
		return f.SynthFunc(ctx, req)
	}
	if f.SynthErr != nil {
		return nil, f.SynthErr
	}
	return append([]byte(nil), f.Audio...), nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	return nil
}

func (f *Fake) SetSpeechRate(rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	return nil
}

func (f *Fake) SetPitch(pitch float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pitch = pitch
	return nil
}

func (f *Fake) SetVolume(volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
	return nil
}

func (f *Fake) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposeCalls++
	if f.disposed {
		return errors.New("fake already disposed")
	}
	f.disposed = true
	f.initialized = false
	return nil
}

// Requests returns every synthesis request seen so far.
func (f *Fake) Requests() []engine.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.SynthesisRequest(nil), f.requests...)
}

// Params returns the last rate, pitch and volume pushed to the fake.
func (f *Fake) Params() (rate, pitch, volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate, f.pitch, f.volume
}

// Counts reports how often lifecycle methods were called.
type Counts struct {
	Initialize int
	Voices     int
	Stop       int
	Dispose    int
}

func (f *Fake) Counts() Counts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Counts{Initialize: f.initCalls, Voices: f.voiceCalls, Stop: f.stopCalls, Dispose: f.disposeCalls}
}

// Disposed reports whether Dispose has been called since construction.
func (f *Fake) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}
