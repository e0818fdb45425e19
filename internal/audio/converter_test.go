package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator-go/internal/tts"
	"github.com/dgnsrekt/narrator-go/internal/wav"
)

func requireFFmpeg(t *testing.T) *Converter {
	t.Helper()
	conv, err := NewConverter()
	if err != nil {
		t.Skip("ffmpeg not installed, skipping converter tests")
	}
	return conv
}

func TestNewConverterWithPath(t *testing.T) {
	conv := NewConverterWithPath("/usr/bin/ffmpeg")
	if conv.ffmpegPath != "/usr/bin/ffmpeg" {
		t.Errorf("ffmpegPath = %q, want %q", conv.ffmpegPath, "/usr/bin/ffmpeg")
	}
}

func TestConverterToPCMEmptyInput(t *testing.T) {
	conv := NewConverterWithPath("ffmpeg")

	for _, in := range [][]byte{nil, {}} {
		if _, err := conv.ToPCM(context.Background(), in, DiscordFormat); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("ToPCM(%v) error = %v, want ErrEmptyInput", in, err)
		}
	}
}

func TestConverterToPCMPassThrough(t *testing.T) {
	// A bogus ffmpeg path proves the matching format never shells out.
	conv := NewConverterWithPath("/nonexistent/ffmpeg")
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}

	got, err := conv.ToPCM(context.Background(), wav.WrapRawPCM(pcm, 48000, 2, 16), DiscordFormat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("ToPCM = %v, want %v", got, pcm)
	}
}

func TestConverterToPCMInvalidWAV(t *testing.T) {
	conv := requireFFmpeg(t)

	if _, err := conv.ToPCM(context.Background(), []byte("not a wav file"), DiscordFormat); !errors.Is(err, ErrConversionFailed) {
		t.Errorf("ToPCM(invalid) error = %v, want ErrConversionFailed", err)
	}
}

func TestConverterToPCMContextCancel(t *testing.T) {
	conv := requireFFmpeg(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conv.ToPCM(ctx, wav.Silence(0, wav.PiperSampleRate, 1), DiscordFormat)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ToPCM(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestConverterToPCMResamples(t *testing.T) {
	conv := requireFFmpeg(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pcm, err := conv.ToPCM(ctx, wav.Silence(100*time.Millisecond, wav.PiperSampleRate, 1), DiscordFormat)
	if err != nil {
		t.Fatalf("ToPCM() error = %v", err)
	}
	// 100ms at 48kHz stereo 16-bit is about 19200 bytes.
	if len(pcm) < 15000 || len(pcm) > 24000 {
		t.Errorf("unexpected output length %d", len(pcm))
	}
}

func TestPCMFrameReader(t *testing.T) {
	data := make([]byte, DiscordFrameBytes*2+DiscordFrameBytes/2)
	reader := NewPCMFrameReader(data)

	for i := 0; i < 2; i++ {
		frame, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() %d error = %v", i, err)
		}
		if len(frame) != DiscordFrameBytes {
			t.Errorf("frame %d length = %d, want %d", i, len(frame), DiscordFrameBytes)
		}
	}

	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("partial frame read error = %v, want io.EOF", err)
	}
	if reader.Remaining() != DiscordFrameBytes/2 {
		t.Errorf("Remaining() = %d, want %d", reader.Remaining(), DiscordFrameBytes/2)
	}
}

func TestDiscordFrameBytes(t *testing.T) {
	// 960 samples * 2 channels * 2 bytes
	if DiscordFrameBytes != 3840 {
		t.Errorf("DiscordFrameBytes = %d, want 3840", DiscordFrameBytes)
	}
}

type failingConverter struct{ err error }

func (f failingConverter) ToPCM(context.Context, []byte, Format) ([]byte, error) {
	return nil, f.err
}

func TestSpeakerPlayConversionError(t *testing.T) {
	want := errors.New("boom")
	s := &Speaker{
		format: DiscordFormat,
		conv:   failingConverter{err: want},
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}

	if err := s.Play(context.Background(), &tts.AudioResult{Data: []byte("x")}); !errors.Is(err, want) {
		t.Errorf("Play() error = %v, want %v", err, want)
	}
}

func TestSpeakerPlayEmptyAudio(t *testing.T) {
	s := &Speaker{format: DiscordFormat, conv: NewConverterWithPath("/nonexistent/ffmpeg")}

	// Zero-length PCM in the device format is a no-op and never touches oto.
	if err := s.Play(context.Background(), &tts.AudioResult{Data: wav.WrapRawPCM(nil, 48000, 2, 16)}); err != nil {
		t.Errorf("Play() error = %v", err)
	}
}
