package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/alouette/tts/pkg/tts/engine"
)

// Request is one item of a batch.
type Request struct {
	Text    string
	SSML    bool
	Options []Option
}

// Result is the outcome of one batch item. Index matches the request's
// position in the batch.
type Result struct {
	Index  int
	Audio  []byte
	Format string
	Err    error
}

// run is an admitted operation.
type run struct {
	op        *operation
	name      string
	ctx       context.Context
	adapter   engine.Adapter
	engine    engine.ID
	req       engine.SynthesisRequest
	timeout   time.Duration
	playback  bool
	exclusive bool
	start     time.Time
}

// Speak synthesizes text and plays it, returning when playback ends. A
// Stop during the call makes Speak return nil.
func (s *Service) Speak(ctx context.Context, text string, opts ...Option) error {
	return s.speak(ctx, "speak", text, false, opts)
}

// SpeakSSML is Speak for SSML markup. It fails with
// ErrUnsupportedOperation on engines without SSML support.
func (s *Service) SpeakSSML(ctx context.Context, ssml string, opts ...Option) error {
	return s.speak(ctx, "speak_ssml", ssml, true, opts)
}

func (s *Service) speak(ctx context.Context, name, text string, ssml bool, opts []Option) error {
	r, err := s.begin(ctx, name, text, ssml, opts, true)
	if err != nil {
		return err
	}

	audio, outcome, err := s.synthesize(r)
	if err == nil {
		log.Debug("Playing", "op", r.op.id, "bytes", len(audio), "format", r.req.Format)
		if playErr := s.player.Play(r.ctx, audio, r.req.Format); playErr != nil {
			err = newError(name, r.engine, ErrIO, fmt.Errorf("playback: %w", playErr))
		}
	} else {
		s.dropPendingPause(r)
	}
	_, err = s.finish(r, outcome, err)
	return err
}

// dropPendingPause clears a pause requested while r was still
// synthesizing, so the next clip does not start paused.
func (s *Service) dropPendingPause(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != r.op || s.state != StatePaused {
		return
	}
	if err := s.player.Stop(); err != nil {
		log.Debug("Player stop failed", "error", err)
	}
}

// SynthesizeToAudio renders text to encoded audio without playing it. The
// service does not enter the speaking state.
func (s *Service) SynthesizeToAudio(ctx context.Context, text string, opts ...Option) ([]byte, error) {
	audio, _, err := s.synthesizeText(ctx, "synthesize", text, false, opts)
	return audio, err
}

// SynthesizeSSMLToAudio is SynthesizeToAudio for SSML markup.
func (s *Service) SynthesizeSSMLToAudio(ctx context.Context, ssml string, opts ...Option) ([]byte, error) {
	audio, _, err := s.synthesizeText(ctx, "synthesize_ssml", ssml, true, opts)
	return audio, err
}

func (s *Service) synthesizeText(ctx context.Context, name, text string, ssml bool, opts []Option) ([]byte, string, error) {
	r, err := s.begin(ctx, name, text, ssml, opts, false)
	if err != nil {
		return nil, "", err
	}
	audio, outcome, err := s.synthesize(r)
	stopped, err := s.finish(r, outcome, err)
	if stopped {
		return nil, "", newError(name, r.engine, ErrSynthesis, ErrStopped)
	}
	if err != nil {
		return nil, "", err
	}
	return audio, r.req.Format, nil
}

// ProcessBatch synthesizes every request in order, one at a time. A failed
// item does not affect the others. Once ctx is done or Stop is called, the
// remaining items fail without reaching the engine.
func (s *Service) ProcessBatch(ctx context.Context, reqs []Request) []Result {
	s.mu.Lock()
	stops := s.stops
	s.mu.Unlock()

	results := make([]Result, len(reqs))
	for i, req := range reqs {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = newError("batch", "", ErrSynthesis, err)
			continue
		}
		if s.stoppedSince(stops) {
			results[i].Err = newError("batch", "", ErrSynthesis, ErrStopped)
			continue
		}
		name := "batch"
		if req.SSML {
			name = "batch_ssml"
		}
		audio, format, err := s.synthesizeText(ctx, name, req.Text, req.SSML, req.Options)
		results[i].Audio, results[i].Format, results[i].Err = audio, format, err
	}
	log.Debug("Batch processed", "items", len(reqs))
	return results
}

func (s *Service) stoppedSince(stops uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops != stops
}

// begin validates a request and admits it as the running operation.
func (s *Service) begin(ctx context.Context, name, text string, ssml bool, opts []Option, playback bool) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reject := func(kind error, cause error) (*run, error) {
		s.recorder.ObserveOperation(name, s.caps.ID(), OutcomeRejected, 0)
		return nil, newError(name, s.caps.ID(), kind, cause)
	}

	if s.state == StateDisposed {
		return reject(ErrDisposed, nil)
	}
	if strings.TrimSpace(text) == "" {
		return reject(ErrInvalidInput, errors.New("text is empty"))
	}
	switch s.state {
	case StateInitializing:
		return reject(ErrOperationInProgress, errors.New("engine is initializing"))
	case StateUninitialized, StateError:
		return reject(ErrInitialization, fmt.Errorf("service is %s", s.state))
	}
	if s.adapter == nil {
		return reject(ErrInitialization, errors.New("no active engine"))
	}
	if limit := s.caps.MaxTextLength; limit > 0 {
		if n := utf8.RuneCountInString(text); n > limit {
			return reject(ErrInvalidInput, fmt.Errorf("text has %d characters, engine accepts %d", n, limit))
		}
	}

	concurrent := !playback && s.caps.SupportsConcurrentSynthesis
	if s.active != nil || (!concurrent && len(s.shared) > 0) {
		return reject(ErrOperationInProgress, nil)
	}
	if ssml && !s.caps.SupportsSSML {
		return reject(ErrUnsupportedOperation, errors.New("engine does not support SSML"))
	}

	caps := s.caps.Capabilities
	cfg := s.config.apply(opts).Clamp(&caps)
	format := cfg.AudioFormat
	if format == "" {
		format = caps.DefaultFormat()
	} else if !caps.SupportsFormat(format) {
		return reject(ErrUnsupportedOperation, fmt.Errorf("format %q", format))
	}

	opCtx, cancel := context.WithCancel(ctx)
	op := &operation{id: newOperationID(), kind: name, cancel: cancel}
	if concurrent {
		s.shared[op] = struct{}{}
	} else {
		s.active = op
	}
	if playback {
		s.setStateLocked(StateSpeaking)
	}

	log.Debug("Operation started", "op", op.id, "kind", name, "engine", s.caps.ID(), "chars", len(text))
	return &run{
		op:        op,
		name:      name,
		ctx:       opCtx,
		adapter:   s.adapter,
		engine:    s.caps.ID(),
		timeout:   s.adapterTimeout(caps),
		playback:  playback,
		exclusive: !concurrent,
		start:     time.Now(),
		req: engine.SynthesisRequest{
			Text:    text,
			SSML:    ssml,
			VoiceID: cfg.VoiceID,
			Format:  format,
			Prosody: cfg.prosody(),
		},
	}, nil
}

// finish releases the operation and settles the state. It reports whether
// the operation was stopped, in which case err is nil.
func (s *Service) finish(r *run, outcome string, err error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer r.op.cancel()

	if s.active == r.op {
		s.active = nil
		if r.playback && s.state.IsActive() {
			s.setStateLocked(StateReady)
		}
	}
	delete(s.shared, r.op)

	took := time.Since(r.start)
	if r.op.stopped {
		s.recorder.ObserveOperation(r.name, r.engine, OutcomeStopped, took)
		log.Debug("Operation stopped", "op", r.op.id, "took", took)
		return true, nil
	}
	if err != nil {
		s.lastErr = err
		s.recorder.ObserveOperation(r.name, r.engine, OutcomeError, took)
		log.Warn("Operation failed", "op", r.op.id, "kind", r.name, "engine", r.engine, "error", err)
		return false, err
	}
	s.recorder.ObserveOperation(r.name, r.engine, outcome, took)
	log.Debug("Operation completed", "op", r.op.id, "took", took)
	return false, nil
}

// synthesize produces audio for r, consulting the cache first.
func (s *Service) synthesize(r *run) ([]byte, string, error) {
	var key string
	if s.cache != nil {
		key = cacheKey(r.engine, r.req)
		if audio, ok := s.cache.Get(key); ok {
			log.Debug("Cache hit", "op", r.op.id, "bytes", len(audio))
			return audio, OutcomeCacheHit, nil
		}
	}

	audio, err := s.callAdapter(r)
	if err != nil {
		return nil, OutcomeError, s.classify(r, err)
	}
	if s.cache != nil {
		if err := s.cache.Put(key, audio); err != nil {
			log.Debug("Cache store failed", "op", r.op.id, "error", err)
		}
	}
	return audio, OutcomeOK, nil
}

var errTimeout = errors.New("engine timed out")

// callAdapter runs the synthesis bounded by the engine timeout. It returns
// as soon as the timeout fires or the operation is cancelled, even if the
// adapter ignores its context.
func (s *Service) callAdapter(r *run) ([]byte, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	type result struct {
		audio []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		audio, err := r.adapter.Synthesize(ctx, r.req)
		done <- result{audio, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && r.ctx.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v: %w", errTimeout, r.timeout, res.err)
		}
		return res.audio, res.err
	case <-ctx.Done():
		if r.ctx.Err() != nil {
			return nil, r.ctx.Err()
		}
		if r.exclusive {
			_ = r.adapter.Stop()
		}
		return nil, fmt.Errorf("%w after %v", errTimeout, r.timeout)
	}
}

func (s *Service) classify(r *run, err error) error {
	switch {
	case errors.Is(err, engine.ErrUnsupported):
		return newError(r.name, r.engine, ErrUnsupportedOperation, err)
	default:
		return newError(r.name, r.engine, ErrSynthesis, err)
	}
}

func cacheKey(id engine.ID, req engine.SynthesisRequest) string {
	var p engine.Prosody
	if req.Prosody != nil {
		p = *req.Prosody
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.3f|%.3f|%.3f|%s|%t|", id, req.VoiceID, p.Rate, p.Pitch, p.Volume, req.Format, req.SSML)
	h.Write([]byte(req.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// Stop aborts the current playback or synthesis. It is idempotent and may
// be called from any goroutine.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return newError("stop", "", ErrDisposed, nil)
	}
	hadWork := s.stopLocked()
	adapter := s.adapter
	s.mu.Unlock()

	if !hadWork {
		return nil
	}
	if err := s.player.Stop(); err != nil {
		log.Debug("Player stop failed", "error", err)
	}
	if adapter != nil {
		if err := adapter.Stop(); err != nil {
			log.Debug("Engine stop failed", "error", err)
		}
	}
	log.Debug("Stopped")
	return nil
}

// stopLocked cancels every running operation and returns to ready. It
// reports whether anything was running.
func (s *Service) stopLocked() bool {
	s.stops++
	hadWork := false
	if s.active != nil {
		s.active.stopped = true
		s.active.cancel()
		s.active = nil
		hadWork = true
	}
	for op := range s.shared {
		op.stopped = true
		op.cancel()
		delete(s.shared, op)
		hadWork = true
	}
	if s.state.IsActive() {
		s.setStateLocked(StateReady)
		hadWork = true
	}
	return hadWork
}

// Pause pauses playback. Engines without pause support return
// ErrUnsupportedOperation and the state is left unchanged. Outside of
// speaking it does nothing.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return newError("pause", "", ErrDisposed, nil)
	}
	if s.adapter == nil || !s.caps.SupportsPauseResume {
		return newError("pause", s.caps.ID(), ErrUnsupportedOperation, errors.New("engine cannot pause"))
	}
	if s.state != StateSpeaking {
		return nil
	}
	if err := s.player.Pause(); err != nil {
		return newError("pause", s.caps.ID(), ErrIO, err)
	}
	s.setStateLocked(StatePaused)
	return nil
}

// Resume continues paused playback. Outside of paused it does nothing.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return newError("resume", "", ErrDisposed, nil)
	}
	if s.adapter == nil || !s.caps.SupportsPauseResume {
		return newError("resume", s.caps.ID(), ErrUnsupportedOperation, errors.New("engine cannot resume"))
	}
	if s.state != StatePaused {
		return nil
	}
	if err := s.player.Resume(); err != nil {
		return newError("resume", s.caps.ID(), ErrIO, err)
	}
	s.setStateLocked(StateSpeaking)
	return nil
}
