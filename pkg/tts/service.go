package tts

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/voices"
)

// Service is the unified text-to-speech facade. All methods are safe for
// concurrent use.
type Service struct {
	factory  *engine.Factory
	catalog  *voices.Catalog
	player   Player
	cache    AudioCache
	recorder Recorder
	fallback bool
	timeout  time.Duration
	engine   engine.ID

	mu      sync.Mutex
	state   State
	config  Config
	lastErr error
	adapter engine.Adapter
	caps    activeCaps

	// active is the exclusive speak or synthesis in flight.
	active *operation
	// shared holds concurrent synthesis calls on engines that allow them.
	shared map[*operation]struct{}
	// stops counts Stop calls so batches can notice one between items.
	stops uint64
}

type operation struct {
	id      string
	kind    string
	cancel  context.CancelFunc
	stopped bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPlayer sets the audio output used by Speak. Without one, audio is
// synthesized and discarded.
func WithPlayer(p Player) ServiceOption {
	return func(s *Service) { s.player = p }
}

// WithCache enables the synthesis cache.
func WithCache(c AudioCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithFallback controls whether SwitchEngine and Initialize may fall back
// to other candidates. It defaults to true.
func WithFallback(enabled bool) ServiceOption {
	return func(s *Service) { s.fallback = enabled }
}

// WithTimeout overrides the per-call adapter timeout advertised by the
// engine's capabilities.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithEngine makes Initialize start from id instead of the recommended
// engine.
func WithEngine(id engine.ID) ServiceOption {
	return func(s *Service) { s.engine = id }
}

// WithCatalog shares a voice catalog.
func WithCatalog(c *voices.Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

// NewService creates an uninitialized service.
func NewService(factory *engine.Factory, opts ...ServiceOption) *Service {
	s := &Service{
		factory:  factory,
		fallback: true,
		state:    StateUninitialized,
		config:   DefaultConfig(),
		shared:   make(map[*operation]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = voices.New()
	}
	if s.player == nil {
		s.player = nopPlayer{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// Initialize selects and initializes an engine with the current config.
// It is a no-op when the service is already ready.
func (s *Service) Initialize(ctx context.Context) error {
	return s.initialize(ctx, nil)
}

// InitializeWithConfig initializes the service and applies cfg.
func (s *Service) InitializeWithConfig(ctx context.Context, cfg Config) error {
	return s.initialize(ctx, &cfg)
}

func (s *Service) initialize(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	switch s.state {
	case StateDisposed:
		s.mu.Unlock()
		return newError("initialize", "", ErrDisposed, nil)
	case StateInitializing:
		s.mu.Unlock()
		return newError("initialize", "", ErrOperationInProgress, nil)
	case StateReady, StateSpeaking, StatePaused:
		if cfg != nil {
			s.applyConfigLocked(*cfg)
		}
		s.mu.Unlock()
		return nil
	}
	if cfg != nil {
		s.config = cfg.Clamp(nil)
	}
	s.setStateLocked(StateInitializing)
	s.mu.Unlock()

	start := time.Now()
	adapter, err := s.create(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		if adapter != nil {
			_ = adapter.Dispose()
		}
		return newError("initialize", "", ErrDisposed, nil)
	}
	if err != nil {
		s.lastErr = newError("initialize", s.engine, ErrInitialization, err)
		s.setStateLocked(StateError)
		s.recorder.ObserveOperation("initialize", s.engine, OutcomeError, time.Since(start))
		log.Error("Initialization failed", "error", err)
		return s.lastErr
	}

	s.installLocked(adapter)
	s.lastErr = nil
	s.setStateLocked(StateReady)
	s.recorder.ObserveOperation("initialize", s.caps.ID(), OutcomeOK, time.Since(start))
	go s.warmCatalog(adapter)
	return nil
}

func (s *Service) create(ctx context.Context) (engine.Adapter, error) {
	switch {
	case s.engine == "":
		if s.fallback {
			return s.factory.CreatePreferred(ctx)
		}
		return s.factory.Create(ctx, s.factory.Matrix().Recommended(ctx))
	case s.fallback:
		return s.factory.CreateWithFallback(ctx, s.engine)
	default:
		return s.factory.Create(ctx, s.engine)
	}
}

// installLocked makes adapter the active engine and pushes the clamped
// configuration to it.
func (s *Service) installLocked(adapter engine.Adapter) {
	info := adapter.Info()
	s.adapter = adapter
	s.caps = activeCaps{Capabilities: info.Capabilities, id: info.ID}
	s.applyConfigLocked(s.config)
	log.Info("Engine active", "engine", info.ID, "name", info.Name, "version", info.Version, "platform", info.Platform)
}

func (s *Service) warmCatalog(adapter engine.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.adapterTimeout(adapter.Info().Capabilities))
	defer cancel()
	if _, err := s.catalog.Refresh(ctx, adapter); err != nil {
		log.Debug("Voice catalog warm-up failed", "error", err)
	}
}

func (s *Service) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		log.Warn("Unexpected state transition", "from", from, "to", to)
	}
	s.state = to
	s.recorder.StateChanged(from, to)
	log.Debug("State changed", "from", from, "to", to)
}

// UpdateConfig replaces the configuration. Values are clamped to the active
// engine's ranges and take effect from the next operation. A format the
// engine cannot produce is replaced by the engine default.
func (s *Service) UpdateConfig(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return newError("update config", "", ErrDisposed, nil)
	}
	if cfg.AudioFormat != "" && s.adapter != nil && !s.caps.SupportsFormat(cfg.AudioFormat) {
		log.Warn("Engine does not support audio format, using its default", "engine", s.caps.ID(), "format", cfg.AudioFormat)
		cfg.AudioFormat = ""
	}
	s.applyConfigLocked(cfg)
	return nil
}

func (s *Service) applyConfigLocked(cfg Config) {
	if s.adapter == nil {
		s.config = cfg.Clamp(nil)
		return
	}
	caps := s.caps.Capabilities
	s.config = cfg.Clamp(&caps)
	if err := s.adapter.SetSpeechRate(s.config.SpeechRate); err != nil {
		log.Warn("Engine rejected speech rate", "value", s.config.SpeechRate, "error", err)
	}
	if err := s.adapter.SetPitch(s.config.Pitch); err != nil {
		log.Warn("Engine rejected pitch", "value", s.config.Pitch, "error", err)
	}
	if err := s.adapter.SetVolume(s.config.Volume); err != nil {
		log.Warn("Engine rejected volume", "value", s.config.Volume, "error", err)
	}
}

// CurrentConfig returns the active configuration.
func (s *Service) CurrentConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// CurrentState returns the lifecycle state.
func (s *Service) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent operation failure, or nil.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CurrentEngine describes the active engine. ok is false when none is.
func (s *Service) CurrentEngine() (info engine.Info, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return engine.Info{}, false
	}
	return s.adapter.Info(), true
}

// Capabilities returns the active engine's capabilities.
func (s *Service) Capabilities() (engine.Capabilities, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps.Capabilities, s.adapter != nil
}

// SwitchEngine stops any activity, releases the current engine and
// initializes id, falling back to the platform order when enabled.
func (s *Service) SwitchEngine(ctx context.Context, id engine.ID) error {
	s.mu.Lock()
	switch s.state {
	case StateDisposed:
		s.mu.Unlock()
		return newError("switch engine", "", ErrDisposed, nil)
	case StateInitializing:
		s.mu.Unlock()
		return newError("switch engine", "", ErrOperationInProgress, nil)
	}
	s.stopLocked()
	from := s.caps.ID()
	old := s.adapter
	s.adapter = nil
	s.caps = activeCaps{}
	s.catalog.Invalidate()
	s.setStateLocked(StateInitializing)
	s.mu.Unlock()

	if old != nil {
		_ = old.Stop()
		if err := old.Dispose(); err != nil {
			log.Warn("Disposing previous engine failed", "engine", from, "error", err)
		}
	}

	start := time.Now()
	var (
		adapter engine.Adapter
		err     error
	)
	if s.fallback {
		adapter, err = s.factory.CreateWithFallback(ctx, id)
	} else {
		adapter, err = s.factory.Create(ctx, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		if adapter != nil {
			_ = adapter.Dispose()
		}
		return newError("switch engine", "", ErrDisposed, nil)
	}
	if err != nil {
		kind := ErrEngineUnavailable
		if s.fallback {
			kind = ErrInitialization
		}
		s.lastErr = newError("switch engine", id, kind, err)
		s.setStateLocked(StateError)
		s.recorder.ObserveOperation("switch_engine", id, OutcomeError, time.Since(start))
		return s.lastErr
	}

	s.installLocked(adapter)
	s.lastErr = nil
	s.setStateLocked(StateReady)
	s.recorder.EngineSwitched(from, s.caps.ID())
	s.recorder.ObserveOperation("switch_engine", s.caps.ID(), OutcomeOK, time.Since(start))
	go s.warmCatalog(adapter)
	return nil
}

// AvailableVoices returns the active engine's voices, loading them on
// first use.
func (s *Service) AvailableVoices(ctx context.Context) ([]engine.Voice, error) {
	s.mu.Lock()
	if err := s.requireEngineLocked("voices"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	adapter, id := s.adapter, s.caps.ID()
	timeout := s.adapterTimeout(s.caps.Capabilities)
	s.mu.Unlock()

	if !s.catalog.Empty() {
		return s.catalog.Voices(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	list, err := s.catalog.Refresh(ctx, adapter)
	if err != nil {
		return nil, newError("voices", id, ErrEngineUnavailable, err)
	}
	return list, nil
}

// VoicesByLanguage returns the voices matching a BCP-47 language code.
func (s *Service) VoicesByLanguage(ctx context.Context, code string) ([]engine.Voice, error) {
	list, err := s.AvailableVoices(ctx)
	if err != nil {
		return nil, err
	}
	return voices.FilterByLanguage(list, code), nil
}

func (s *Service) requireEngineLocked(op string) error {
	switch s.state {
	case StateDisposed:
		return newError(op, "", ErrDisposed, nil)
	case StateInitializing:
		return newError(op, "", ErrOperationInProgress, errors.New("engine is initializing"))
	}
	if s.adapter == nil {
		return newError(op, "", ErrInitialization, errors.New("service not initialized"))
	}
	return nil
}

// SaveAudioToFile writes audio to path.
func (s *Service) SaveAudioToFile(audio []byte, path string) error {
	if s.CurrentState() == StateDisposed {
		return newError("save audio", "", ErrDisposed, nil)
	}
	if len(audio) == 0 {
		return newError("save audio", "", ErrInvalidInput, errors.New("no audio data"))
	}
	if path == "" {
		return newError("save audio", "", ErrInvalidInput, errors.New("empty path"))
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return newError("save audio", "", ErrIO, err)
	}
	log.Debug("Audio saved", "path", path, "bytes", len(audio))
	return nil
}

// Dispose stops all activity, releases the engine and the player, and
// resets the configuration. The service cannot be used afterwards.
func (s *Service) Dispose() error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return newError("dispose", "", ErrDisposed, nil)
	}
	s.stopLocked()
	adapter := s.adapter
	s.adapter = nil
	s.caps = activeCaps{}
	s.config = DefaultConfig()
	s.lastErr = nil
	s.catalog.Invalidate()
	s.setStateLocked(StateDisposed)
	s.mu.Unlock()

	var errs []error
	if err := s.player.Stop(); err != nil {
		errs = append(errs, err)
	}
	if adapter != nil {
		_ = adapter.Stop()
		if err := adapter.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.player.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return newError("dispose", "", ErrIO, errors.Join(errs...))
	}
	log.Debug("Service disposed")
	return nil
}

func (s *Service) adapterTimeout(caps engine.Capabilities) time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	if caps.Timeout > 0 {
		return caps.Timeout
	}
	return 30 * time.Second
}

func newOperationID() string {
	return uuid.NewString()
}

// activeCaps pairs the active engine's capabilities with its id.
type activeCaps struct {
	engine.Capabilities
	id engine.ID
}

func (c activeCaps) ID() engine.ID { return c.id }
