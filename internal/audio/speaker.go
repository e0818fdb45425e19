package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// speakerPollInterval is how often playback completion is checked.
const speakerPollInterval = 20 * time.Millisecond

// PCMConverter turns WAV audio into raw PCM of a given format.
type PCMConverter interface {
	ToPCM(ctx context.Context, wavData []byte, f Format) ([]byte, error)
}

// Speaker plays audio on the local sound device. oto allows one context per
// process, so a program should create at most one Speaker.
type Speaker struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	format Format
	conv   PCMConverter
	logger *slog.Logger
}

// NewSpeaker opens the default output device at 48kHz stereo.
func NewSpeaker(conv PCMConverter, logger *slog.Logger) (*Speaker, error) {
	format := DiscordFormat
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &Speaker{
		otoCtx: otoCtx,
		format: format,
		conv:   conv,
		logger: logger,
	}, nil
}

// Play converts the unit and blocks until it has finished playing or ctx
// ends. Only one unit plays at a time.
func (s *Speaker) Play(ctx context.Context, unit *tts.AudioResult) error {
	pcm, err := s.conv.ToPCM(ctx, unit.Data, s.format)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.otoCtx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	s.logger.Debug("playing on speaker", "bytes", len(pcm))
	player.Play()

	ticker := time.NewTicker(speakerPollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}
