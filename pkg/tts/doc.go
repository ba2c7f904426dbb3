// Package tts is the unified text-to-speech service. A Service owns one
// engine adapter at a time, selected by an engine.Factory with ordered
// fallback, and exposes speaking, synthesis, playback control, voice
// discovery and configuration behind a single state machine.
//
// Only one playback or synthesis runs at a time unless the active engine
// supports concurrent synthesis; a second request fails immediately with
// ErrOperationInProgress instead of queueing.
package tts
