package tts

import (
	"context"
	"time"

	"github.com/alouette/tts/pkg/tts/engine"
)

// Player plays synthesized audio. Play blocks until the audio has finished,
// Stop was called or ctx is done. Pause may arrive before Play starts; the
// next Play then begins paused.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
	Pause() error
	Resume() error
	Stop() error
	Close() error
}

// AudioCache stores synthesized audio by key.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, audio []byte) error
}

// Outcome labels for Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeStopped  = "stopped"
	OutcomeRejected = "rejected"
	OutcomeCacheHit = "cache_hit"
)

// Recorder receives service events for metrics.
type Recorder interface {
	ObserveOperation(op string, id engine.ID, outcome string, d time.Duration)
	EngineSwitched(from, to engine.ID)
	StateChanged(from, to State)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, engine.ID, string, time.Duration) {}
func (nopRecorder) EngineSwitched(engine.ID, engine.ID)                         {}
func (nopRecorder) StateChanged(State, State)                                   {}

// nopPlayer discards audio. It is used when no Player is configured.
type nopPlayer struct{}

func (nopPlayer) Play(ctx context.Context, audio []byte, format string) error { return ctx.Err() }
func (nopPlayer) Pause() error                                                 { return nil }
func (nopPlayer) Resume() error                                                { return nil }
func (nopPlayer) Stop() error                                                  { return nil }
func (nopPlayer) Close() error                                                 { return nil }
