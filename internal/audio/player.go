//go:build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	deviceOnce sync.Once
	device     *oto.Context
	deviceErr  error
)

func openDevice() (*oto.Context, error) {
	deviceOnce.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: ChannelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		switch runtime.GOOS {
		case "darwin":
			opts.BufferSize = 100 * time.Millisecond
		default:
			opts.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			deviceErr = fmt.Errorf("%w: %w", ErrNoAudioDevice, err)
			return
		}
		<-ready
		device = ctx
		log.Debug("Audio device ready", "rate", SampleRate, "channels", ChannelCount)
	})
	return device, deviceErr
}

// Player plays one clip at a time on the system audio device. It is safe
// for concurrent use.
type Player struct {
	ctx  *oto.Context
	poll time.Duration

	mu     sync.Mutex
	active *oto.Player
	// data keeps the PCM of the active clip reachable while oto reads it.
	data   []byte
	paused bool
	stop   chan struct{}
	closed bool
	volume float64
}

// NewPlayer opens the audio device.
func NewPlayer() (*Player, error) {
	ctx, err := openDevice()
	if err != nil {
		return nil, err
	}
	return &Player{ctx: ctx, poll: 10 * time.Millisecond, stop: make(chan struct{}), volume: 1}, nil
}

// Play decodes audio and blocks until it has been played, Stop is called
// or ctx is done. If Pause was called while idle, the clip starts paused.
func (p *Player) Play(ctx context.Context, audio []byte, format string) error {
	pcm, err := Decode(audio, format)
	if err != nil {
		return err
	}
	pcm = pcm.ForDevice()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.active != nil {
		p.mu.Unlock()
		return ErrBusy
	}
	player := p.ctx.NewPlayer(bytes.NewReader(pcm.Data))
	player.SetVolume(p.volume)
	p.active, p.data = player, pcm.Data
	stop := p.stop
	if !p.paused {
		player.Play()
	}
	p.mu.Unlock()

	log.Debug("Playback started", "duration", pcm.Duration(), "bytes", len(pcm.Data))
	defer p.release(player)

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-stop:
			player.Pause()
			return nil
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if paused || player.IsPlaying() {
				continue
			}
			if err := player.Err(); err != nil {
				return fmt.Errorf("playback: %w", err)
			}
			return nil
		}
	}
}

func (p *Player) release(player *oto.Player) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == player {
		p.active, p.data = nil, nil
		p.paused = false
	}
	if err := player.Close(); err != nil {
		log.Debug("Closing oto player failed", "error", err)
	}
}

// Pause halts the active clip. While idle it makes the next clip start
// paused.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.paused = true
	if p.active != nil {
		p.active.Pause()
	}
	return nil
}

// Resume continues a paused clip.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.paused = false
	if p.active != nil {
		p.active.Play()
	}
	return nil
}

// Stop ends the active clip. It is a no-op while idle.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	close(p.stop)
	p.stop = make(chan struct{})
	return nil
}

// SetVolume sets the output gain for this and later clips, 0 to 1.
func (p *Player) SetVolume(v float64) {
	v = max(0, min(1, v))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	if p.active != nil {
		p.active.SetVolume(v)
	}
}

// Close stops playback. The shared device stays open for the life of the
// process.
func (p *Player) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
