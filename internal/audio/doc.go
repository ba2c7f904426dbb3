// Package audio decodes synthesized speech and plays it through the system
// audio device.
//
// Engines produce either MP3 (edge-tts) or WAV (espeak-ng, say, SAPI). Both
// are decoded to 16-bit little-endian PCM, downmixed to mono and resampled
// to the device rate before playback through a single process-wide oto
// context.
//
// Build with -tags nocgo for environments without an audio device; NewPlayer
// then returns ErrNoAudioDevice.
package audio
