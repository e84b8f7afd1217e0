// Package observe wires Cadence's metrics, traces and trace-aware logging.
//
// Instruments are created through the OpenTelemetry metrics API and scraped
// from /metrics once [InitProvider] has installed the Prometheus exporter.
// Production code shares [DefaultMetrics]; tests build their own with
// [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/cadence"

// Stage names for [Metrics.RecordStage].
const (
	StageTranscribe = "transcribe"
	StageSegment    = "segment"
	StageAnnotate   = "annotate"
	StageAlign      = "align"
	StageGenerate   = "generate"
	StageValidate   = "validate"
)

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration is per-stage latency, attribute stage.
	StageDuration metric.Float64Histogram

	// ProviderDuration, ProviderRequests and ProviderErrors cover calls to
	// transcription and generation backends, attributes provider and kind.
	// Requests also carry status.
	ProviderDuration metric.Float64Histogram
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// OnsetFallbacks counts segmentation runs by the winning strategy.
	OnsetFallbacks metric.Int64Counter

	// Candidates counts validated lines, attribute status (valid, invalid).
	Candidates metric.Int64Counter

	// Blocks counts finished blocks, attribute status.
	Blocks metric.Int64Counter

	// ActiveBlocks is the number of blocks in flight.
	ActiveBlocks metric.Int64UpDownCounter

	// Attempts is the number of generator calls a block needed.
	Attempts metric.Int64Histogram

	// BestScore is the validator score of each block's best line.
	BestScore metric.Float64Histogram

	// HTTPRequestDuration is ops server latency by method, route and status
	// class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. A local model can spend a minute on one
// batch.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

var (
	attemptBuckets = []float64{1, 2, 3, 4}
	scoreBuckets   = []float64{0.25, 0.5, 0.75, 0.9, 1}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := builder{m: mp.Meter(meterName)}
	met := &Metrics{
		StageDuration:    b.seconds("cadence.stage.duration", "Latency of one pipeline stage.", latencyBuckets),
		ProviderDuration: b.seconds("cadence.provider.duration", "Latency of transcription and generation calls.", latencyBuckets),
		ProviderRequests: b.counter("cadence.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   b.counter("cadence.provider.errors", "Failed provider calls by provider and kind."),
		OnsetFallbacks:   b.counter("cadence.onset.fallbacks", "Segmentation runs by the strategy whose onsets were kept."),
		Candidates:       b.counter("cadence.candidates", "Validated candidate lines by status."),
		Blocks:           b.counter("cadence.blocks", "Finished blocks by status."),
		Attempts:         b.ints("cadence.generation.attempts", "Generator calls needed per block.", attemptBuckets),
		BestScore:        b.floats("cadence.generation.best_score", "Validator score of the best line per block.", scoreBuckets),
		HTTPRequestDuration: b.seconds("cadence.http.request.duration",
			"Ops server request latency by method, route and status class.", nil),
	}
	if b.err == nil {
		met.ActiveBlocks, b.err = b.m.Int64UpDownCounter("cadence.blocks.active",
			metric.WithDescription("Blocks currently in flight."))
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// builder keeps the first instrument error so NewMetrics reads as a table.
type builder struct {
	m   metric.Meter
	err error
}

func (b *builder) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.m.Float64Histogram(name, opts...)
	b.keep(err)
	return h
}

func (b *builder) floats(name, desc string, buckets []float64) metric.Float64Histogram {
	h, err := b.m.Float64Histogram(name, metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(buckets...))
	b.keep(err)
	return h
}

func (b *builder) ints(name, desc string, buckets []float64) metric.Int64Histogram {
	h, err := b.m.Int64Histogram(name, metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(buckets...))
	b.keep(err)
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.m.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance built on
// [otel.GetMeterProvider] at first use. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// ObserveProvider records one call that started at start: its latency, its
// request count and, when err is set, an error.
func (m *Metrics) ObserveProvider(ctx context.Context, provider, kind string, start time.Time, err error) {
	who := metric.WithAttributes(Attr("provider", provider), Attr("kind", kind))
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, who)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(), who)
}

// RecordOnsetStrategy counts one segmentation run. No strategy is recorded
// as "none".
func (m *Metrics) RecordOnsetStrategy(ctx context.Context, strategy string) {
	if strategy == "" {
		strategy = "none"
	}
	m.OnsetFallbacks.Add(ctx, 1, metric.WithAttributes(Attr("strategy", strategy)))
}

// RecordCandidates adds one batch of validated lines.
func (m *Metrics) RecordCandidates(ctx context.Context, valid, invalid int) {
	for status, n := range map[string]int{"valid": valid, "invalid": invalid} {
		if n > 0 {
			m.Candidates.Add(ctx, int64(n), metric.WithAttributes(Attr("status", status)))
		}
	}
}

// RecordBlock counts one finished block.
func (m *Metrics) RecordBlock(ctx context.Context, status string) {
	m.Blocks.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordGeneration records how many calls a block took and, when a best line
// exists, its score.
func (m *Metrics) RecordGeneration(ctx context.Context, attempts int, best float64, hasBest bool) {
	if attempts > 0 {
		m.Attempts.Record(ctx, int64(attempts))
	}
	if hasBest {
		m.BestScore.Record(ctx, best)
	}
}
