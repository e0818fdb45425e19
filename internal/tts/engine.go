package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrSynthesisFailed is returned when an engine cannot produce audio.
	ErrSynthesisFailed = errors.New("TTS synthesis failed")
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("empty text")
)

// SynthesizeRequest contains parameters for TTS synthesis.
type SynthesizeRequest struct {
	Text string
	// Voice is an engine voice, optionally qualified as "engine:voice".
	Voice string
}

// AudioResult is one synthesized audio unit.
type AudioResult struct {
	// Data contains the audio bytes (WAV format).
	Data []byte
	// Format describes the audio format (e.g., "wav").
	Format string
	// SampleRate is the audio sample rate in Hz.
	SampleRate int
	// Channels is the number of audio channels.
	Channels int
}

// Reader returns an io.Reader over the audio data.
func (a *AudioResult) Reader() io.Reader {
	return bytes.NewReader(a.Data)
}

// Duration estimates the playing time of 16-bit WAV audio.
func (a *AudioResult) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 || len(a.Data) <= wavHeaderSize {
		return 0
	}
	frames := (len(a.Data) - wavHeaderSize) / (2 * a.Channels)
	return time.Duration(frames) * time.Second / time.Duration(a.SampleRate)
}

const wavHeaderSize = 44

// Engine is the interface for text-to-speech synthesis.
type Engine interface {
	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error)
	// Name returns the engine identifier.
	Name() string
}

// SplitVoice separates an "engine:voice" identifier. Voices without a
// qualifier return an empty engine name.
func SplitVoice(voice string) (engine, name string) {
	if i := strings.IndexByte(voice, ':'); i > 0 {
		return voice[:i], voice[i+1:]
	}
	return "", voice
}
