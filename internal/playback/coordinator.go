// Package playback turns attributed segments into ordered speech.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/observe"
	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// DefaultSynthesisTimeout bounds each synthesis request.
const DefaultSynthesisTimeout = 30 * time.Second

var (
	// ErrSynthesisTimeout is returned for a segment whose synthesis outlived
	// the per-request timeout.
	ErrSynthesisTimeout = errors.New("synthesis timed out")
	// ErrNoAudio is returned when an engine reports success without audio.
	ErrNoAudio = errors.New("engine returned no audio")
)

// Player plays one audio unit to completion.
type Player interface {
	Play(ctx context.Context, unit *tts.AudioResult) error
}

type result struct {
	unit *tts.AudioResult
	err  error
}

// Coordinator synthesizes every segment of a narration at once and plays
// the results strictly in segment order.
type Coordinator struct {
	speakMu sync.Mutex
	engine  tts.Engine
	player  Player
	timeout time.Duration
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator. A timeout of zero uses
// DefaultSynthesisTimeout.
func NewCoordinator(engine tts.Engine, player Player, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	return &Coordinator{
		engine:  engine,
		player:  player,
		timeout: timeout,
		logger:  logger,
	}
}

// SetMetrics sets where synthesis and playback outcomes are recorded.
func (c *Coordinator) SetMetrics(m *observe.Metrics) {
	c.metrics = m
}

// Speak plays segs in order. Segments whose synthesis fails or times out are
// skipped, as are units the player fails on. It returns once every segment
// has been handled and every synthesis goroutine has exited, with ctx.Err()
// if the narration was cancelled. Calls are serialized.
func (c *Coordinator) Speak(ctx context.Context, segs []narrative.Segment) error {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	if len(segs) == 0 {
		return nil
	}

	slots := make([]chan result, len(segs))
	var g errgroup.Group
	for i, seg := range segs {
		slot := make(chan result, 1)
		slots[i] = slot
		g.Go(func() error {
			slot <- c.synthesize(ctx, i, seg)
			return nil
		})
	}

	// Synthesis goroutines never fail the group; only the drainer reports
	// an error, and Wait returns it once every slot writer has exited.
	g.Go(func() error {
		return c.drain(ctx, segs, slots)
	})
	return g.Wait()
}

// synthesize resolves one slot. The engine call runs apart so that a
// request ignoring its context still resolves the slot at the deadline.
func (c *Coordinator) synthesize(ctx context.Context, i int, seg narrative.Segment) result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		unit, err := c.engine.Synthesize(ctx, tts.SynthesizeRequest{Text: seg.Text, Voice: seg.Voice})
		if err == nil && (unit == nil || len(unit.Data) == 0) {
			err = ErrNoAudio
		}
		done <- result{unit: unit, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}
	if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.err = fmt.Errorf("%w after %s: %w", ErrSynthesisTimeout, c.timeout, r.err)
	}

	status := observe.StatusPlayed
	if r.err != nil {
		status = observe.StatusFailed
	}
	c.metrics.RecordSynthesis(ctx, time.Since(start), status)
	c.logger.Debug("segment synthesized",
		"segment", i,
		"speaker", seg.Speaker,
		"voice", seg.Voice,
		"took", time.Since(start),
		"error", r.err,
	)
	return r
}

// drain plays slots in order, waiting on each until it resolves.
func (c *Coordinator) drain(ctx context.Context, segs []narrative.Segment, slots []chan result) error {
	for i, slot := range slots {
		seg := segs[i]

		var r result
		select {
		case r = <-slot:
		case <-ctx.Done():
			c.logger.Info("narration cancelled", "remaining_segments", len(slots)-i)
			return ctx.Err()
		}

		if r.err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("skipping segment",
				"segment", i,
				"speaker", seg.Speaker,
				"voice", seg.Voice,
				"error", r.err,
			)
			c.metrics.RecordSegment(ctx, string(seg.Kind), observe.StatusSkipped)
			continue
		}

		if err := c.player.Play(ctx, r.unit); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("narration cancelled during playback", "segment", i)
				return ctx.Err()
			}
			c.logger.Error("playback failed", "segment", i, "speaker", seg.Speaker, "error", err)
			c.metrics.RecordPlaybackFailure(ctx)
			c.metrics.RecordSegment(ctx, string(seg.Kind), observe.StatusFailed)
			continue
		}
		c.metrics.RecordSegment(ctx, string(seg.Kind), observe.StatusPlayed)
	}
	return ctx.Err()
}
