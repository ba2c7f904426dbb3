package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Supported encoded formats.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

var (
	// ErrUnsupportedFormat is returned for encodings Decode cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidAudio is returned for malformed input.
	ErrInvalidAudio = errors.New("invalid audio data")
)

// PCM is signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Decode converts encoded audio to PCM. An empty format is sniffed from
// the data.
func Decode(audio []byte, format string) (PCM, error) {
	if len(audio) == 0 {
		return PCM{}, fmt.Errorf("%w: empty", ErrInvalidAudio)
	}
	if format == "" {
		format = Sniff(audio)
	}
	switch format {
	case FormatWAV:
		return decodeWAV(audio)
	case FormatMP3:
		return decodeMP3(audio)
	default:
		return PCM{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Sniff guesses the encoding from the leading bytes.
func Sniff(audio []byte) string {
	switch {
	case len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return FormatWAV
	case len(audio) >= 3 && string(audio[0:3]) == "ID3":
		return FormatMP3
	case len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return ""
}

func decodeMP3(audio []byte) (PCM, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	// go-mp3 always emits 16-bit stereo.
	return PCM{Data: data, SampleRate: d.SampleRate(), Channels: 2}, nil
}

// decodeWAV walks the RIFF chunks for "fmt " and "data". Only 16-bit
// integer PCM is accepted, which is what every supported engine writes.
func decodeWAV(wav []byte) (PCM, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return PCM{}, fmt.Errorf("%w: not a WAV file", ErrInvalidAudio)
	}

	var (
		out     PCM
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		start := pos + 8
		end := start + size
		// espeak-ng writes 0xFFFFFFFF sizes when streaming to stdout.
		if end > len(wav) || end < start {
			end = len(wav)
		}

		switch id {
		case "fmt ":
			if end-start < 16 {
				return PCM{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidAudio)
			}
			chunk := wav[start:end]
			tag := binary.LittleEndian.Uint16(chunk[0:2])
			out.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bits := binary.LittleEndian.Uint16(chunk[14:16])
			if (tag != 1 && tag != 0xFFFE) || bits != 16 {
				return PCM{}, fmt.Errorf("%w: WAV encoding %d with %d bits", ErrUnsupportedFormat, tag, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, fmt.Errorf("%w: data chunk before fmt", ErrInvalidAudio)
			}
			if out.Channels < 1 || out.SampleRate < 1 {
				return PCM{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidAudio, out.Channels, out.SampleRate)
			}
			data := wav[start:end]
			frame := 2 * out.Channels
			out.Data = data[:len(data)-len(data)%frame]
			return out, nil
		}

		pos = end
		// Chunks are word-aligned.
		if size%2 != 0 {
			pos++
		}
	}
	return PCM{}, fmt.Errorf("%w: data chunk not found", ErrInvalidAudio)
}

// EncodeWAV wraps PCM in a canonical 44-byte WAV header.
func EncodeWAV(p PCM) []byte {
	const header = 44
	wav := make([]byte, header+len(p.Data))
	blockAlign := p.Channels * 2

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(header-8+len(p.Data)))
	copy(wav[8:12], "WAVE")
	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], 1)
	binary.LittleEndian.PutUint16(wav[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(p.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], 16)
	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(len(p.Data)))
	copy(wav[header:], p.Data)
	return wav
}
