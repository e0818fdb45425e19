package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// LogPlayer is a sink that only logs each unit. With pacing enabled it also
// waits for the unit's playing time, which keeps timing realistic when no
// audio device is available.
type LogPlayer struct {
	pace   bool
	logger *slog.Logger
}

// NewLogPlayer creates a logging sink.
func NewLogPlayer(pace bool, logger *slog.Logger) *LogPlayer {
	return &LogPlayer{pace: pace, logger: logger}
}

// Play logs unit and optionally waits for its duration.
func (p *LogPlayer) Play(ctx context.Context, unit *tts.AudioResult) error {
	d := unit.Duration()
	p.logger.Info("audio unit", "bytes", len(unit.Data), "duration", d)
	if !p.pace || d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
