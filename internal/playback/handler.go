package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/narrator-go/internal/queue"
)

// NarrativeSpeaker speaks a block of narrative prose.
type NarrativeSpeaker interface {
	SpeakNarrative(ctx context.Context, text string) error
}

// Handler runs queued narration jobs.
type Handler struct {
	narrator NarrativeSpeaker
	logger   *slog.Logger
}

// NewHandler creates a job handler.
func NewHandler(narrator NarrativeSpeaker, logger *slog.Logger) *Handler {
	return &Handler{narrator: narrator, logger: logger}
}

// Handle speaks one job. It is passed to queue.SetHandler.
func (h *Handler) Handle(ctx context.Context, job *queue.NarrationJob) error {
	h.logger.Info("narrating job",
		"job_id", job.ID,
		"text_length", len(job.Text),
		"queued_for", time.Since(job.CreatedAt).Round(time.Millisecond),
	)

	if err := h.narrator.SpeakNarrative(ctx, job.Text); err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info("narration interrupted", "job_id", job.ID)
		}
		return fmt.Errorf("narrate job %s: %w", job.ID, err)
	}

	h.logger.Info("narration complete", "job_id", job.ID)
	return nil
}
