package tts

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/narrator-go/internal/wav"
)

const (
	silentSampleRate = 16000
	// silentPerRune approximates speaking pace at about 15 characters a second.
	silentPerRune = 65 * time.Millisecond
)

// SilentEngine produces silence as long as the text would take to read. It
// backs TTS_ENGINE=none so the pipeline can run without a voice.
type SilentEngine struct{}

// Name returns the engine identifier.
func (SilentEngine) Name() string {
	return "none"
}

// Synthesize returns mono silence sized to the text.
func (SilentEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	d := time.Duration(utf8.RuneCountInString(req.Text)) * silentPerRune
	return &AudioResult{
		Data:       wav.Silence(d, silentSampleRate, 1),
		Format:     "wav",
		SampleRate: silentSampleRate,
		Channels:   1,
	}, nil
}
