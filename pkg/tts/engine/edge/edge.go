// Package edge implements the process engine on top of the edge-tts
// command line tool, which synthesizes with Microsoft's neural voices.
package edge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/platform"
)

// DefaultVoice is used when the request names none.
const DefaultVoice = "en-US-AriaNeural"

const livenessTimeout = 5 * time.Second

// Config holds the edge-tts adapter settings.
type Config struct {
	// Binary is the edge-tts executable, looked up in PATH.
	Binary string

	// DefaultVoice is used when a request has no voice.
	DefaultVoice string

	// RequestsPerMinute limits calls to the remote service. Defaults to 60.
	RequestsPerMinute int

	// TempDir holds the intermediate text and media files.
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = platform.ProcessEngineBinary
	}
	if c.DefaultVoice == "" {
		c.DefaultVoice = DefaultVoice
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	return c
}

// Adapter drives edge-tts as a subprocess.
type Adapter struct {
	cfg      Config
	exec     subprocess.Executor
	platform platform.Platform
	caps     engine.Capabilities
	limiter  *rate.Limiter

	mu          sync.Mutex
	initialized bool
	disposed    bool
	version     string
	rate        float64
	pitch       float64
	volume      float64
}

// New creates an adapter. It performs no I/O.
func New(cfg Config, exec subprocess.Executor, p platform.Platform, caps engine.Capabilities) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		cfg:      cfg,
		exec:     exec,
		platform: p,
		caps:     caps,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 3),
		rate:     1,
		pitch:    1,
		volume:   1,
	}
}

// NewConstructor returns an engine.Constructor for the registry.
func NewConstructor(cfg Config, exec subprocess.Executor) engine.Constructor {
	return func(p platform.Platform, caps engine.Capabilities) (engine.Adapter, error) {
		if !p.IsDesktop() {
			return nil, fmt.Errorf("edge-tts needs a desktop host, not %s", p)
		}
		return New(cfg, exec, p, caps), nil
	}
}

func (a *Adapter) Info() engine.Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return engine.Info{
		ID:           engine.ProcessEngine,
		Name:         "edge-tts",
		Version:      a.version,
		Platform:     a.platform,
		Capabilities: a.caps,
	}
}

// Initialize verifies the executable runs and records its version.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return a.fail("initialize", errors.New("adapter disposed"))
	}
	if a.initialized {
		return nil
	}

	version, err := a.probeVersion(ctx)
	if err != nil {
		return a.fail("initialize", err)
	}
	a.version = version
	a.initialized = true
	log.Debug("edge-tts initialized", "binary", a.cfg.Binary, "version", version)
	return nil
}

func (a *Adapter) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// IsAvailable runs edge-tts --version.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()
	_, err := a.probeVersion(ctx)
	if err != nil {
		log.Debug("edge-tts liveness check failed", "error", err)
	}
	return err == nil
}

func (a *Adapter) probeVersion(ctx context.Context) (string, error) {
	out, err := a.exec.Run(ctx, subprocess.Command{Name: a.cfg.Binary, Args: []string{"--version"}})
	if err != nil {
		return "", err
	}
	return parseVersion(string(out)), nil
}

// parseVersion extracts "6.1.12" from "edge-tts 6.1.12".
func parseVersion(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Voices lists the voices reported by edge-tts --list-voices.
func (a *Adapter) Voices(ctx context.Context) ([]engine.Voice, error) {
	if !a.IsInitialized() {
		return nil, a.fail("voices", engine.ErrNotInitialized)
	}
	out, err := a.exec.Run(ctx, subprocess.Command{Name: a.cfg.Binary, Args: []string{"--list-voices"}})
	if err != nil {
		return nil, a.fail("voices", err)
	}
	voices := ParseVoices(string(out))
	if len(voices) == 0 {
		return nil, a.fail("voices", errors.New("edge-tts reported no voices"))
	}
	return voices, nil
}

// Synthesize renders text to MP3.
func (a *Adapter) Synthesize(ctx context.Context, req engine.SynthesisRequest) ([]byte, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return nil, a.fail("synthesize", engine.ErrNotInitialized)
	}
	args := a.argsLocked(req)
	a.mu.Unlock()

	if req.SSML {
		return nil, a.fail("synthesize", fmt.Errorf("%w: ssml", engine.ErrUnsupported))
	}
	if req.Format != "" && req.Format != engine.FormatMP3 {
		return nil, a.fail("synthesize", fmt.Errorf("%w: format %s", engine.ErrUnsupported, req.Format))
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, a.fail("synthesize", errors.New("text cannot be empty"))
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, a.synthesisError(fmt.Errorf("rate limit wait cancelled: %w", err))
	}

	textFile, err := os.CreateTemp(a.cfg.TempDir, "alouette-edge-*.txt")
	if err != nil {
		return nil, a.synthesisError(fmt.Errorf("create text file: %w", err))
	}
	defer os.Remove(textFile.Name())
	if _, err := textFile.WriteString(req.Text); err != nil {
		textFile.Close()
		return nil, a.synthesisError(fmt.Errorf("write text file: %w", err))
	}
	if err := textFile.Close(); err != nil {
		return nil, a.synthesisError(err)
	}

	mediaFile, err := os.CreateTemp(a.cfg.TempDir, "alouette-edge-*.mp3")
	if err != nil {
		return nil, a.synthesisError(fmt.Errorf("create media file: %w", err))
	}
	mediaFile.Close()
	defer os.Remove(mediaFile.Name())

	args = append(args, "--file", textFile.Name(), "--write-media", mediaFile.Name())
	if _, err := a.exec.Run(ctx, subprocess.Command{Name: a.cfg.Binary, Args: args}); err != nil {
		if errors.Is(err, subprocess.ErrAborted) {
			return nil, a.fail("synthesize", engine.ErrStopped)
		}
		return nil, a.synthesisError(err)
	}

	audio, err := os.ReadFile(mediaFile.Name())
	if err != nil {
		return nil, a.synthesisError(fmt.Errorf("read media file: %w", err))
	}
	if len(audio) == 0 {
		return nil, a.synthesisError(errors.New("edge-tts produced no audio"))
	}
	log.Debug("edge-tts synthesized", "chars", len(req.Text), "bytes", len(audio))
	return audio, nil
}

func (a *Adapter) argsLocked(req engine.SynthesisRequest) []string {
	voice := req.VoiceID
	if voice == "" {
		voice = a.cfg.DefaultVoice
	}
	p := engine.Prosody{Rate: a.rate, Pitch: a.pitch, Volume: a.volume}
	if req.Prosody != nil {
		p = engine.Prosody{
			Rate:   a.caps.RateRange.Clamp(req.Prosody.Rate),
			Pitch:  a.caps.PitchRange.Clamp(req.Prosody.Pitch),
			Volume: engine.GlobalVolumeRange.Clamp(req.Prosody.Volume),
		}
	}
	return []string{
		"--voice", voice,
		fmt.Sprintf("--rate=%+d%%", percent(p.Rate)),
		fmt.Sprintf("--volume=%+d%%", percent(p.Volume)),
		fmt.Sprintf("--pitch=%+dHz", hertz(p.Pitch)),
	}
}

// percent converts a 1.0-centred multiplier to an edge-tts percentage.
func percent(v float64) int {
	return int(math.Round((v - 1) * 100))
}

// hertz maps a pitch multiplier to an offset from the voice's base pitch.
func hertz(p float64) int {
	return int(math.Round((p - 1) * 100))
}

// Stop aborts running edge-tts processes.
func (a *Adapter) Stop() error {
	a.exec.StopAll()
	return nil
}

func (a *Adapter) SetSpeechRate(rate float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rate = a.caps.RateRange.Clamp(rate)
	return nil
}

func (a *Adapter) SetPitch(pitch float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pitch = a.caps.PitchRange.Clamp(pitch)
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volume = engine.GlobalVolumeRange.Clamp(volume)
	return nil
}

func (a *Adapter) Dispose() error {
	a.exec.StopAll()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.disposed = true
	return nil
}

func (a *Adapter) fail(op string, err error) error {
	return &engine.Error{Engine: engine.ProcessEngine, Op: op, Err: err}
}

func (a *Adapter) synthesisError(err error) error {
	return a.fail("synthesize", fmt.Errorf("%w: %w", engine.ErrSynthesis, err))
}
