package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Device output format. Every clip is converted to this before playback.
const (
	SampleRate   = 24000
	ChannelCount = 1
)

// Duration returns the playing time of p.
func (p PCM) Duration() time.Duration {
	frame := 2 * p.Channels
	if frame == 0 || p.SampleRate == 0 {
		return 0
	}
	frames := len(p.Data) / frame
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Mono averages all channels into one.
func (p PCM) Mono() PCM {
	if p.Channels <= 1 {
		return p
	}
	frame := 2 * p.Channels
	frames := len(p.Data) / frame
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < p.Channels; ch++ {
			off := i*frame + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(p.Data[off:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/p.Channels)))
	}
	return PCM{Data: out, SampleRate: p.SampleRate, Channels: 1}
}

// Resample converts mono PCM to rate with linear interpolation. That is
// plenty for speech.
func (p PCM) Resample(rate int) PCM {
	if p.SampleRate == rate || p.SampleRate == 0 || len(p.Data) < 2 {
		return PCM{Data: p.Data, SampleRate: rate, Channels: p.Channels}
	}
	p = p.Mono()
	in := len(p.Data) / 2
	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(p.Data[i*2:])))
	}

	ratio := float64(p.SampleRate) / float64(rate)
	n := int(float64(in) / ratio)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		var v float64
		if idx >= in-1 {
			v = sample(in - 1)
		} else {
			frac := pos - float64(idx)
			v = sample(idx)*(1-frac) + sample(idx+1)*frac
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v))))
	}
	return PCM{Data: out, SampleRate: rate, Channels: 1}
}

// ForDevice converts p to the device output format.
func (p PCM) ForDevice() PCM {
	return p.Mono().Resample(SampleRate)
}
