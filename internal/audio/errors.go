package audio

import "errors"

var (
	// ErrNoAudioDevice is returned when no output device can be opened.
	ErrNoAudioDevice = errors.New("no audio device")
	// ErrBusy is returned by Play while another clip is playing.
	ErrBusy = errors.New("player busy")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player closed")
)
