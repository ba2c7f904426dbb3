// Package native implements the native engine over the operating system's
// speech facilities: espeak-ng on Linux, say on macOS and System.Speech on
// Windows. Mobile and web embedders supply their own Backend.
package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/platform"
)

// Backend is one platform speech facility.
type Backend interface {
	Name() string

	// Available reports whether the facility can be used. It never errors.
	Available(ctx context.Context) bool
	Version(ctx context.Context) string
	Voices(ctx context.Context) ([]engine.Voice, error)
	Synthesize(ctx context.Context, req engine.SynthesisRequest, params engine.Prosody) ([]byte, error)

	// Stop aborts in-flight synthesis.
	Stop()
}

// ErrNoBackend is returned when the platform has no usable backend.
var ErrNoBackend = errors.New("no native speech backend for platform")

// Config holds native adapter settings.
type Config struct {
	// Binary overrides the backend executable (espeak-ng, say, powershell).
	Binary string

	// TempDir holds intermediate audio files.
	TempDir string

	// HostBackend is used on mobile and web, where speech is provided by
	// the embedding application.
	HostBackend Backend

	// LookPath resolves executables. Defaults to exec.LookPath.
	LookPath platform.LookPathFunc
}

func (c Config) withDefaults() Config {
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.LookPath == nil {
		c.LookPath = exec.LookPath
	}
	return c
}

// NewBackend picks the backend for p.
func NewBackend(cfg Config, runner subprocess.Executor, p platform.Platform) (Backend, error) {
	cfg = cfg.withDefaults()
	switch p {
	case platform.DesktopLinux:
		return newEspeak(cfg, runner), nil
	case platform.DesktopMacOS:
		return newSay(cfg, runner), nil
	case platform.DesktopWindows:
		return newSAPI(cfg, runner), nil
	}
	if cfg.HostBackend != nil {
		return cfg.HostBackend, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBackend, p)
}

// NewConstructor returns an engine.Constructor for the registry.
func NewConstructor(cfg Config, runner subprocess.Executor) engine.Constructor {
	return func(p platform.Platform, caps engine.Capabilities) (engine.Adapter, error) {
		backend, err := NewBackend(cfg, runner, p)
		if err != nil {
			return nil, err
		}
		return New(backend, p, caps), nil
	}
}

// Adapter exposes a Backend as an engine.Adapter.
type Adapter struct {
	backend  Backend
	platform platform.Platform
	caps     engine.Capabilities

	mu          sync.Mutex
	initialized bool
	disposed    bool
	version     string
	params      engine.Prosody
}

// New wraps backend.
func New(backend Backend, p platform.Platform, caps engine.Capabilities) *Adapter {
	return &Adapter{
		backend:  backend,
		platform: p,
		caps:     caps,
		params:   engine.Prosody{Rate: 1, Pitch: 1, Volume: 1},
	}
}

func (a *Adapter) Info() engine.Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return engine.Info{
		ID:           engine.NativeEngine,
		Name:         a.backend.Name(),
		Version:      a.version,
		Platform:     a.platform,
		Capabilities: a.caps,
	}
}

func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return a.fail("initialize", errors.New("adapter disposed"))
	}
	if a.initialized {
		return nil
	}
	if !a.backend.Available(ctx) {
		return a.fail("initialize", fmt.Errorf("%s is not usable", a.backend.Name()))
	}
	a.version = a.backend.Version(ctx)
	a.initialized = true
	log.Debug("Native backend initialized", "backend", a.backend.Name(), "version", a.version)
	return nil
}

func (a *Adapter) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.backend.Available(ctx)
}

func (a *Adapter) Voices(ctx context.Context) ([]engine.Voice, error) {
	if !a.IsInitialized() {
		return nil, a.fail("voices", engine.ErrNotInitialized)
	}
	voices, err := a.backend.Voices(ctx)
	if err != nil {
		return nil, a.fail("voices", err)
	}
	return voices, nil
}

func (a *Adapter) Synthesize(ctx context.Context, req engine.SynthesisRequest) ([]byte, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return nil, a.fail("synthesize", engine.ErrNotInitialized)
	}
	params := a.params
	if req.Prosody != nil {
		params = a.clampLocked(*req.Prosody)
	}
	a.mu.Unlock()

	if req.SSML && !a.caps.SupportsSSML {
		return nil, a.fail("synthesize", fmt.Errorf("%w: ssml", engine.ErrUnsupported))
	}
	if req.Format != "" && !a.caps.SupportsFormat(req.Format) {
		return nil, a.fail("synthesize", fmt.Errorf("%w: format %s", engine.ErrUnsupported, req.Format))
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, a.fail("synthesize", errors.New("text cannot be empty"))
	}

	audio, err := a.backend.Synthesize(ctx, req, params)
	if err != nil {
		if errors.Is(err, subprocess.ErrAborted) {
			return nil, a.fail("synthesize", engine.ErrStopped)
		}
		return nil, a.fail("synthesize", fmt.Errorf("%w: %w", engine.ErrSynthesis, err))
	}
	if len(audio) == 0 {
		return nil, a.fail("synthesize", fmt.Errorf("%w: %s produced no audio", engine.ErrSynthesis, a.backend.Name()))
	}
	return audio, nil
}

func (a *Adapter) Stop() error {
	a.backend.Stop()
	return nil
}

// clampLocked limits p to what the backend can express. Pitch stays at 1
// on backends without pitch control.
func (a *Adapter) clampLocked(p engine.Prosody) engine.Prosody {
	out := engine.Prosody{
		Rate:   a.caps.RateRange.Clamp(p.Rate),
		Pitch:  1,
		Volume: engine.GlobalVolumeRange.Clamp(p.Volume),
	}
	if a.caps.SupportsPitchControl {
		out.Pitch = a.caps.PitchRange.Clamp(p.Pitch)
	}
	return out
}

func (a *Adapter) SetSpeechRate(rate float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = a.clampLocked(engine.Prosody{Rate: rate, Pitch: a.params.Pitch, Volume: a.params.Volume})
	return nil
}

func (a *Adapter) SetPitch(pitch float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = a.clampLocked(engine.Prosody{Rate: a.params.Rate, Pitch: pitch, Volume: a.params.Volume})
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = a.clampLocked(engine.Prosody{Rate: a.params.Rate, Pitch: a.params.Pitch, Volume: volume})
	return nil
}

func (a *Adapter) Dispose() error {
	a.backend.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.disposed = true
	return nil
}

func (a *Adapter) fail(op string, err error) error {
	return &engine.Error{Engine: engine.NativeEngine, Op: op, Err: err}
}

// readTemp runs fn with a fresh temp file path and returns the file's
// contents afterwards.
func readTemp(dir, pattern string, fn func(path string) error) ([]byte, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := fn(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
