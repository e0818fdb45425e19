// Package feed turns ntfy topic streams into queued narration jobs.
package feed

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dgnsrekt/narrator-go/internal/observe"
	"github.com/dgnsrekt/narrator-go/internal/queue"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	// dedupeEntries caps how many recent texts are remembered per window.
	dedupeEntries = 1024
)

// Message is one event from the ntfy JSON stream.
type Message struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Enqueuer accepts narration jobs.
type Enqueuer interface {
	Enqueue(job *queue.NarrationJob) error
}

// Config controls which topics are followed and how messages become jobs.
type Config struct {
	Server        string
	Topics        []string
	Prefix        string
	Interrupt     bool
	TTL           time.Duration
	DedupeWindow  time.Duration
	MaxTextLength int
}

// Subscriber follows ntfy topics and enqueues each message as narration.
type Subscriber struct {
	cfg     Config
	sink    Enqueuer
	client  *http.Client
	metrics *observe.Metrics
	logger  *slog.Logger

	dedupeMu sync.Mutex
	seen     *expirable.LRU[string, struct{}]
}

// NewSubscriber creates a subscriber feeding sink.
func NewSubscriber(cfg Config, sink Enqueuer, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		cfg:     cfg,
		sink:    sink,
		client:  &http.Client{},
		metrics: observe.Noop(),
		logger:  logger,
	}
	if cfg.DedupeWindow > 0 {
		s.seen = expirable.NewLRU[string, struct{}](dedupeEntries, nil, cfg.DedupeWindow)
	}
	return s
}

// SetMetrics replaces the no-op metrics.
func (s *Subscriber) SetMetrics(m *observe.Metrics) {
	s.metrics = m
}

// Run follows every configured topic until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, topic := range s.cfg.Topics {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			s.follow(ctx, t)
		}(topic)
	}
	wg.Wait()
}

// follow keeps one topic subscribed, reconnecting with exponential backoff.
func (s *Subscriber) follow(ctx context.Context, topic string) {
	backoff := minBackoff
	for {
		s.logger.Info("subscribing to ntfy topic", "topic", topic, "server", s.cfg.Server)

		err := s.subscribe(ctx, topic)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("ntfy subscription error, reconnecting", "topic", topic, "error", err, "backoff", backoff)
		} else {
			backoff = minBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// subscribe reads a topic's JSON stream until it ends or ctx is cancelled.
func (s *Subscriber) subscribe(ctx context.Context, topic string) error {
	url := fmt.Sprintf("%s/%s/json", strings.TrimSuffix(s.cfg.Server, "/"), topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("failed to parse ntfy message", "error", err)
			continue
		}
		// keepalive and open events carry no text
		if msg.Event != "message" {
			continue
		}
		s.handle(ctx, msg)
	}
	return scanner.Err()
}

// handle enqueues one message unless it is empty or a recent repeat.
func (s *Subscriber) handle(ctx context.Context, msg Message) {
	text := s.FormatText(msg.Title, msg.Message)
	if text == "" {
		s.logger.Debug("skipping empty ntfy message", "id", msg.ID)
		return
	}

	var dedupeKey string
	if s.seen != nil {
		dedupeKey = dedupeKeyFor(text)
		if !s.markSeen(dedupeKey) {
			s.logger.Debug("skipping repeated ntfy message", "id", msg.ID, "dedupe_key", dedupeKey)
			return
		}
	}

	job := queue.NewNarrationJob(text, s.cfg.Interrupt, s.cfg.TTL, dedupeKey)
	if err := s.sink.Enqueue(job); err != nil {
		// A rejected message must still be accepted on redelivery.
		s.forget(dedupeKey)
		s.metrics.RecordEnqueue(ctx, "rejected")
		s.logger.Error("failed to enqueue ntfy message", "id", msg.ID, "topic", msg.Topic, "error", err)
		return
	}
	s.metrics.RecordEnqueue(ctx, "accepted")
	s.logger.Info("enqueued ntfy message",
		"id", msg.ID,
		"topic", msg.Topic,
		"job_id", job.ID,
		"interrupt", s.cfg.Interrupt,
	)
}

// markSeen records key and reports whether it was new within the window.
func (s *Subscriber) markSeen(key string) bool {
	s.dedupeMu.Lock()
	defer s.dedupeMu.Unlock()

	if _, ok := s.seen.Get(key); ok {
		return false
	}
	s.seen.Add(key, struct{}{})
	return true
}

// forget drops key so a later copy of the message is not treated as a repeat.
func (s *Subscriber) forget(key string) {
	if s.seen == nil || key == "" {
		return
	}
	s.dedupeMu.Lock()
	defer s.dedupeMu.Unlock()
	s.seen.Remove(key)
}

// FormatText joins prefix, title and message with ": " and truncates the
// result to MaxTextLength runes.
func (s *Subscriber) FormatText(title, message string) string {
	var parts []string
	for _, p := range []string{s.cfg.Prefix, title, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	text := strings.Join(parts, ": ")

	if s.cfg.MaxTextLength > 0 {
		if r := []rune(text); len(r) > s.cfg.MaxTextLength {
			text = string(r[:s.cfg.MaxTextLength])
		}
	}
	return text
}

func dedupeKeyFor(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "ntfy:" + hex.EncodeToString(sum[:8])
}
