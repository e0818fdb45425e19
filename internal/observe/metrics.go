// Package observe records narration metrics through OpenTelemetry and
// exposes them for Prometheus scraping.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dgnsrekt/narrator-go"

// Segment status values.
const (
	StatusPlayed  = "played"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// latencyBuckets are histogram boundaries in seconds sized for neural TTS.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

// Metrics holds the narrator's instruments. A nil *Metrics records nothing.
type Metrics struct {
	SynthesisDuration metric.Float64Histogram
	Segments          metric.Int64Counter
	AttributionRules  metric.Int64Counter
	PlaybackFailures  metric.Int64Counter
	JobsEnqueued      metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("narrator.synthesis.duration",
		metric.WithDescription("Latency of one segment synthesis request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("narrator.segments",
		metric.WithDescription("Segments handled by the coordinator by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.AttributionRules, err = m.Int64Counter("narrator.attribution.rules",
		metric.WithDescription("Quote attributions by the rule that matched."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackFailures, err = m.Int64Counter("narrator.playback.failures",
		metric.WithDescription("Audio units the sink failed to play."),
	); err != nil {
		return nil, err
	}
	if met.JobsEnqueued, err = m.Int64Counter("narrator.jobs.enqueued",
		metric.WithDescription("Narration jobs accepted by the API by outcome."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Noop returns metrics that discard every measurement.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordSynthesis records one synthesis latency and its outcome.
func (m *Metrics) RecordSynthesis(ctx context.Context, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordSegment counts one segment by kind and final status.
func (m *Metrics) RecordSegment(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.Segments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordRule counts one attribution by rule name.
func (m *Metrics) RecordRule(ctx context.Context, rule string) {
	if m == nil {
		return
	}
	m.AttributionRules.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordPlaybackFailure counts one failed playback.
func (m *Metrics) RecordPlaybackFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.PlaybackFailures.Add(ctx, 1)
}

// RecordEnqueue counts one API enqueue attempt by outcome.
func (m *Metrics) RecordEnqueue(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
