package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumWhere returns the value of the int64 sum data point whose attributes
// include every key/value in want.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, want map[string]string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
outer:
	for _, dp := range sum.DataPoints {
		for k, v := range want {
			got, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || got.AsString() != v {
				continue outer
			}
		}
		return dp.Value
	}
	t.Fatalf("metric %q has no data point with %v", name, want)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, "beep", "baseline", 7.5)
	m.RecordDecision(ctx, "beep", "baseline", 9.1)
	m.RecordDecision(ctx, "silence", "augmented", 12)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "beepwise.decisions", map[string]string{"kind": "beep", "mode": "baseline"}); got != 2 {
		t.Errorf("beep decisions = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "beepwise.decisions", map[string]string{"kind": "silence"}); got != 1 {
		t.Errorf("silence decisions = %d, want 1", got)
	}

	met := findMetric(rm, "beepwise.decision.stream_time")
	if met == nil {
		t.Fatal("stream time histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("stream time metric is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("stream time samples = %d, want 3", count)
	}
}

func TestRecordUndetermined(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordUndetermined(context.Background(), "augmented")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "beepwise.undetermined", map[string]string{"mode": "augmented"}); got != 1 {
		t.Errorf("undetermined = %d, want 1", got)
	}
}

func TestRecordJudgment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordJudgment(ctx, "llm", 0.2, nil)
	m.RecordJudgment(ctx, "llm", 0.3, nil)
	m.RecordJudgment(ctx, "llm", 1.5, errors.New("timeout"))

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "beepwise.judge.errors", map[string]string{"judge": "llm"}); got != 1 {
		t.Errorf("judge errors = %d, want 1", got)
	}

	met := findMetric(rm, "beepwise.judge.duration")
	if met == nil {
		t.Fatal("judge duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	for _, dp := range hist.DataPoints {
		status, _ := dp.Attributes.Value("status")
		switch status.AsString() {
		case "ok":
			if dp.Count != 2 {
				t.Errorf("ok samples = %d, want 2", dp.Count)
			}
		case "error":
			if dp.Count != 1 {
				t.Errorf("error samples = %d, want 1", dp.Count)
			}
		default:
			t.Errorf("unexpected status %q", status.AsString())
		}
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordBreakerTransition(context.Background(), "judge", "open")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "beepwise.breaker.transitions", map[string]string{"name": "judge", "to": "open"}); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestUpDownCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "beepwise.active_sessions", nil); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
