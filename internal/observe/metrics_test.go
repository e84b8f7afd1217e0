package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics builds Metrics on a manual reader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect reads everything recorded so far.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric returns the metric called name, or nil.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_AllInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m.StageDuration == nil || m.ProviderErrors == nil || m.ActiveBlocks == nil ||
		m.Attempts == nil || m.BestScore == nil || m.HTTPRequestDuration == nil {
		t.Fatalf("instrument missing: %+v", m)
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, StageSegment, 120*time.Millisecond)
	m.RecordStage(ctx, StageAlign, 30*time.Millisecond)
	m.ProviderDuration.Record(ctx, 1.5)
	m.ProviderDuration.Record(ctx, 2.5)

	rm := collect(t, reader)

	for _, name := range []string{"cadence.stage.duration", "cadence.provider.duration"} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			var total uint64
			for _, dp := range hist.DataPoints {
				total += dp.Count
			}
			if total != 2 {
				t.Errorf("sample count = %d, want 2", total)
			}
		})
	}
}

func TestRecordStage_UsesStageAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordStage(context.Background(), StageGenerate, time.Second)

	met := findMetric(collect(t, reader), "cadence.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	v, ok := hist.DataPoints[0].Attributes.Value("stage")
	if !ok || v.AsString() != StageGenerate {
		t.Errorf("stage attribute = %v, want %q", v.AsString(), StageGenerate)
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	attrs := metric.WithAttributes(
		attribute.String("provider", "whisper"),
		attribute.String("kind", "transcriber"),
		attribute.String("status", "ok"),
	)
	m.ProviderRequests.Add(ctx, 1, attrs)
	m.RecordProviderRequest(ctx, "whisper", "transcriber", "ok")
	m.RecordProviderRequest(ctx, "whisper", "transcriber", "error")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "cadence.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumValue(t, rm, "cadence.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestObserveProvider(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	start := time.Now()
	m.ObserveProvider(ctx, "ollama", "llm", start, nil)
	m.ObserveProvider(ctx, "ollama", "llm", start, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "cadence.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumValue(t, rm, "cadence.provider.errors", "provider", "ollama"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if findMetric(rm, "cadence.provider.duration") == nil {
		t.Error("provider duration not recorded")
	}
}

func TestPipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOnsetStrategy(ctx, "spectral")
	m.RecordOnsetStrategy(ctx, "spectral")
	m.RecordOnsetStrategy(ctx, "")
	m.RecordCandidates(ctx, 2, 3)
	m.RecordCandidates(ctx, 0, 1)
	m.RecordBlock(ctx, "matched")

	rm := collect(t, reader)

	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"cadence.onset.fallbacks", "strategy", "spectral", 2},
		{"cadence.onset.fallbacks", "strategy", "none", 1},
		{"cadence.candidates", "status", "valid", 2},
		{"cadence.candidates", "status", "invalid", 4},
		{"cadence.blocks", "status", "matched", 1},
	}
	for _, tc := range tests {
		t.Run(tc.metric+"/"+tc.value, func(t *testing.T) {
			if got := sumValue(t, rm, tc.metric, tc.key, tc.value); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, 1, 1, true)
	m.RecordGeneration(ctx, 3, 0, false)
	m.RecordGeneration(ctx, 0, 0, false)

	rm := collect(t, reader)
	attempts, ok := findMetric(rm, "cadence.generation.attempts").Data.(metricdata.Histogram[int64])
	if !ok || len(attempts.DataPoints) != 1 {
		t.Fatal("attempts is not an int64 histogram with one point")
	}
	if dp := attempts.DataPoints[0]; dp.Count != 2 || dp.Sum != 4 {
		t.Errorf("attempts count/sum = %d/%d, want 2/4", dp.Count, dp.Sum)
	}
	score, ok := findMetric(rm, "cadence.generation.best_score").Data.(metricdata.Histogram[float64])
	if !ok || len(score.DataPoints) != 1 || score.DataPoints[0].Count != 1 {
		t.Errorf("best score = %+v, want one sample", score)
	}
}

func TestActiveBlocksGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveBlocks.Add(ctx, 1)
	m.ActiveBlocks.Add(ctx, 1)
	m.ActiveBlocks.Add(ctx, -1)

	met := findMetric(collect(t, reader), "cadence.blocks.active")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}

// sumValue returns the value of the int64 sum data point of metric name whose
// attribute key equals value.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}
