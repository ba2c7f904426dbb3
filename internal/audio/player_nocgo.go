//go:build nocgo

package audio

import "context"

// Player is unavailable in nocgo builds.
type Player struct{}

// NewPlayer always fails in nocgo builds.
func NewPlayer() (*Player, error) {
	return nil, ErrNoAudioDevice
}

func (p *Player) Play(ctx context.Context, audio []byte, format string) error {
	return ErrNoAudioDevice
}

func (p *Player) Pause() error        { return ErrNoAudioDevice }
func (p *Player) Resume() error       { return ErrNoAudioDevice }
func (p *Player) Stop() error         { return nil }
func (p *Player) SetVolume(v float64) {}
func (p *Player) Close() error        { return nil }
