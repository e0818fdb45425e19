package playback

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/roster"
)

// Narrator is the entry point that speaks a block of narrative prose.
type Narrator struct {
	source    roster.Source
	segmenter *narrative.Segmenter
	state     *narrative.State
	coord     *Coordinator
	logger    *slog.Logger
}

// NewNarrator wires a roster source, segmenter and coordinator around one
// session state. A nil source means an empty roster.
func NewNarrator(
	source roster.Source,
	segmenter *narrative.Segmenter,
	state *narrative.State,
	coord *Coordinator,
	logger *slog.Logger,
) *Narrator {
	return &Narrator{
		source:    source,
		segmenter: segmenter,
		state:     state,
		coord:     coord,
		logger:    logger,
	}
}

// SpeakNarrative segments text against a fresh roster snapshot and plays it.
// Attribution continues from the previous call's state.
func (n *Narrator) SpeakNarrative(ctx context.Context, text string) error {
	segs := n.segmenter.Segment(text, n.roster(ctx), n.state)
	n.logger.Debug("narrative segmented", "segments", len(segs))
	return n.coord.Speak(ctx, segs)
}

// Preview attributes text without speaking it. Unless commit is set it runs
// against a copy of the session state, leaving the live session untouched.
func (n *Narrator) Preview(ctx context.Context, text string, commit bool) []narrative.Segment {
	state := n.state
	if !commit {
		state = state.Clone()
	}
	return n.segmenter.Segment(text, n.roster(ctx), state)
}

// Attribute returns the segments for text before merging and chunking,
// resolved against a copy of the session state.
func (n *Narrator) Attribute(ctx context.Context, text string) []narrative.Segment {
	return n.segmenter.Attribute(text, n.roster(ctx), n.state.Clone())
}

// State returns the session state.
func (n *Narrator) State() *narrative.State {
	return n.state
}

// roster snapshots the source. A failing source yields an empty roster so
// quotes fall through to the gender and unknown fallbacks.
func (n *Narrator) roster(ctx context.Context) *narrative.Roster {
	if n.source == nil {
		return narrative.NewRoster(nil, nil)
	}
	people, followers, err := n.source.Snapshot(ctx)
	if err != nil {
		n.logger.Error("roster snapshot failed, continuing without characters", "error", err)
		return narrative.NewRoster(nil, nil)
	}
	return narrative.NewRoster(people, followers)
}
