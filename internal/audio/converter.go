// Package audio converts synthesized WAV audio to the raw PCM layouts the
// playback sinks need, and plays it on the local sound device.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/dgnsrekt/narrator-go/internal/wav"
)

const (
	// DiscordSampleRate is the required sample rate for Discord voice.
	DiscordSampleRate = 48000
	// DiscordChannels is the required number of channels for Discord voice.
	DiscordChannels = 2
	// DiscordFrameSize is the number of samples per frame (20ms at 48kHz).
	DiscordFrameSize = 960
	// DiscordFrameBytes is the size of one frame in bytes (stereo 16-bit).
	DiscordFrameBytes = DiscordFrameSize * DiscordChannels * 2
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not installed.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")
	// ErrConversionFailed is returned when ffmpeg conversion fails.
	ErrConversionFailed = errors.New("audio conversion failed")
	// ErrEmptyInput is returned when there is no audio to convert.
	ErrEmptyInput = errors.New("empty input data")
)

// Format is a 16-bit signed little-endian PCM layout.
type Format struct {
	SampleRate int
	Channels   int
}

// DiscordFormat is the PCM layout Discord voice expects.
var DiscordFormat = Format{SampleRate: DiscordSampleRate, Channels: DiscordChannels}

// Converter resamples WAV audio with ffmpeg.
type Converter struct {
	ffmpegPath string
}

// NewConverter locates ffmpeg on PATH.
func NewConverter() (*Converter, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	return &Converter{ffmpegPath: path}, nil
}

// NewConverterWithPath creates a converter with a specific ffmpeg path.
func NewConverterWithPath(path string) *Converter {
	return &Converter{ffmpegPath: path}
}

// ToPCM returns the samples of wavData as raw PCM in format f. Audio that
// already has that layout is returned without running ffmpeg.
func (c *Converter) ToPCM(ctx context.Context, wavData []byte, f Format) ([]byte, error) {
	if len(wavData) == 0 {
		return nil, ErrEmptyInput
	}
	if pcm, h, err := wav.Decode(wavData); err == nil &&
		h.SampleRate == f.SampleRate && h.Channels == f.Channels && h.BitsPerSample == 16 {
		return pcm, nil
	}

	args := []string{
		"-f", "wav",
		"-i", "pipe:0",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-f", "s16le",
		"-loglevel", "error",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(wavData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, stderr.String())
	}
	return stdout.Bytes(), nil
}

// PCMFrameReader splits raw PCM into fixed-size frames.
type PCMFrameReader struct {
	data      []byte
	offset    int
	frameSize int
}

// NewPCMFrameReader reads Discord-sized frames from pcmData.
func NewPCMFrameReader(pcmData []byte) *PCMFrameReader {
	return &PCMFrameReader{data: pcmData, frameSize: DiscordFrameBytes}
}

// ReadFrame returns the next full frame, or io.EOF when fewer than a
// frame's worth of bytes remain.
func (r *PCMFrameReader) ReadFrame() ([]byte, error) {
	if r.offset+r.frameSize > len(r.data) {
		return nil, io.EOF
	}
	frame := r.data[r.offset : r.offset+r.frameSize]
	r.offset += r.frameSize
	return frame, nil
}

// Remaining returns the number of unread bytes.
func (r *PCMFrameReader) Remaining() int {
	return len(r.data) - r.offset
}
