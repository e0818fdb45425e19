package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// testTimeout is a failsafe, not primary synchronization.
const testTimeout = 5 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine echoes "voice|text" as audio. synth, when set, runs first and
// may delay or fail a request.
type fakeEngine struct {
	synth func(ctx context.Context, req tts.SynthesizeRequest) error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.AudioResult, error) {
	if e.synth != nil {
		if err := e.synth(ctx, req); err != nil {
			return nil, err
		}
	}
	return &tts.AudioResult{Data: []byte(req.Voice + "|" + req.Text), Format: "wav"}, nil
}

// recordingPlayer remembers what it played. fail, when set, may reject a unit.
type recordingPlayer struct {
	mu     sync.Mutex
	played []string
	fail   func(ctx context.Context, unit string) error
}

func (p *recordingPlayer) Play(ctx context.Context, unit *tts.AudioResult) error {
	if p.fail != nil {
		if err := p.fail(ctx, string(unit.Data)); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, string(unit.Data))
	return nil
}

func (p *recordingPlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func segments(texts ...string) []narrative.Segment {
	segs := make([]narrative.Segment, len(texts))
	for i, text := range texts {
		segs[i] = narrative.Segment{Text: text, Kind: narrative.KindNarration, Speaker: narrative.SpeakerNarrator, Voice: "v"}
	}
	return segs
}

func speak(t *testing.T, c *Coordinator, ctx context.Context, segs []narrative.Segment) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Speak(ctx, segs) }()
	select {
	case err := <-done:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for Speak to return")
		return nil
	}
}

func TestSpeakPlaysInOrderDespiteReverseLatency(t *testing.T) {
	texts := []string{"one", "two", "three", "four"}
	delay := map[string]time.Duration{
		"one":   80 * time.Millisecond,
		"two":   60 * time.Millisecond,
		"three": 40 * time.Millisecond,
		"four":  0,
	}
	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		time.Sleep(delay[req.Text])
		return nil
	}}
	player := &recordingPlayer{}

	c := NewCoordinator(engine, player, time.Second, testLogger())
	if err := speak(t, c, context.Background(), segments(texts...)); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"v|one", "v|two", "v|three", "v|four"}
	if diff := cmp.Diff(want, player.Played()); diff != "" {
		t.Errorf("playback order mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeakSynthesizesConcurrently(t *testing.T) {
	const n = 5
	var started atomic.Int32
	allStarted := make(chan struct{})

	// Every request waits for all the others to start, so a sequential
	// coordinator would time every segment out.
	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		if started.Add(1) == n {
			close(allStarted)
		}
		select {
		case <-allStarted:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	player := &recordingPlayer{}

	c := NewCoordinator(engine, player, 2*time.Second, testLogger())
	if err := speak(t, c, context.Background(), segments("a", "b", "c", "d", "e")); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if got := len(player.Played()); got != n {
		t.Errorf("played %d units, want %d", got, n)
	}
}

func TestSpeakSkipsFailedSynthesis(t *testing.T) {
	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		if req.Text == "bad" {
			return tts.ErrSynthesisFailed
		}
		return nil
	}}
	player := &recordingPlayer{}

	c := NewCoordinator(engine, player, time.Second, testLogger())
	if err := speak(t, c, context.Background(), segments("first", "bad", "last")); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"v|first", "v|last"}
	if diff := cmp.Diff(want, player.Played()); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeakSkipsTimedOutSynthesis(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// The stuck request ignores its context entirely.
	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		if req.Text == "stuck" {
			<-release
		}
		return nil
	}}
	player := &recordingPlayer{}

	c := NewCoordinator(engine, player, 50*time.Millisecond, testLogger())
	if err := speak(t, c, context.Background(), segments("before", "stuck", "after")); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"v|before", "v|after"}
	if diff := cmp.Diff(want, player.Played()); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeTimeoutError(t *testing.T) {
	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := NewCoordinator(engine, &recordingPlayer{}, 10*time.Millisecond, testLogger())

	r := c.synthesize(context.Background(), 0, segments("slow")[0])
	if !errors.Is(r.err, ErrSynthesisTimeout) || !errors.Is(r.err, context.DeadlineExceeded) {
		t.Errorf("synthesize() error = %v, want ErrSynthesisTimeout wrapping DeadlineExceeded", r.err)
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	c := NewCoordinator(emptyEngine{}, &recordingPlayer{}, time.Second, testLogger())

	r := c.synthesize(context.Background(), 0, segments("hush")[0])
	if !errors.Is(r.err, ErrNoAudio) {
		t.Errorf("synthesize() error = %v, want ErrNoAudio", r.err)
	}
}

type emptyEngine struct{}

func (emptyEngine) Name() string { return "empty" }

func (emptyEngine) Synthesize(context.Context, tts.SynthesizeRequest) (*tts.AudioResult, error) {
	return &tts.AudioResult{}, nil
}

func TestSpeakContinuesAfterPlaybackFailure(t *testing.T) {
	player := &recordingPlayer{fail: func(ctx context.Context, unit string) error {
		if unit == "v|two" {
			return errors.New("device unplugged")
		}
		return nil
	}}

	c := NewCoordinator(&fakeEngine{}, player, time.Second, testLogger())
	if err := speak(t, c, context.Background(), segments("one", "two", "three")); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"v|one", "v|three"}
	if diff := cmp.Diff(want, player.Played()); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeakCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	player := &recordingPlayer{fail: func(ctx context.Context, unit string) error {
		if unit == "v|two" {
			cancel()
			return ctx.Err()
		}
		return nil
	}}

	c := NewCoordinator(&fakeEngine{}, player, time.Second, testLogger())
	err := speak(t, c, ctx, segments("one", "two", "three"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak() error = %v, want context.Canceled", err)
	}

	want := []string{"v|one"}
	if diff := cmp.Diff(want, player.Played()); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
}

// countingHandler counts log records with a given message.
type countingHandler struct {
	msg string
	n   *atomic.Int32
}

func (h countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h countingHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.n.Add(1)
	}
	return nil
}

func (h countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h countingHandler) WithGroup(string) slog.Handler      { return h }

func TestSpeakCancelledWaitsForEverySlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var synthesized atomic.Int32
	logger := slog.New(countingHandler{msg: "segment synthesized", n: &synthesized})

	engine := &fakeEngine{synth: func(ctx context.Context, req tts.SynthesizeRequest) error {
		if req.Text == "one" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	player := &recordingPlayer{fail: func(context.Context, string) error {
		cancel()
		return nil
	}}

	c := NewCoordinator(engine, player, time.Minute, logger)
	err := speak(t, c, ctx, segments("one", "two", "three", "four"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak() error = %v, want context.Canceled", err)
	}
	if got := synthesized.Load(); got != 4 {
		t.Errorf("Speak returned with %d of 4 slots resolved", got)
	}
}

func TestSpeakEmpty(t *testing.T) {
	c := NewCoordinator(&fakeEngine{}, &recordingPlayer{}, 0, testLogger())
	if c.timeout != DefaultSynthesisTimeout {
		t.Errorf("timeout = %v, want default %v", c.timeout, DefaultSynthesisTimeout)
	}
	if err := c.Speak(context.Background(), nil); err != nil {
		t.Errorf("Speak(nil) error = %v", err)
	}
}

func TestSpeakSerializesCalls(t *testing.T) {
	var active, maxActive atomic.Int32
	player := &recordingPlayer{fail: func(ctx context.Context, unit string) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}}
	c := NewCoordinator(&fakeEngine{}, player, time.Second, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Speak(context.Background(), segments("a", "b"))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for concurrent Speak calls")
	}

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent playbacks = %d, want 1", maxActive.Load())
	}
	if got := len(player.Played()); got != 6 {
		t.Errorf("played %d units, want 6", got)
	}
}
