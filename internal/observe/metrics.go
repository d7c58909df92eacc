// Package observe provides the detector's observability primitives:
// OpenTelemetry metrics, tracing, trace-enriched logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to Prometheus so they can be scraped from /metrics. Tests
// should build their own [Metrics] with [NewMetrics] and a ManualReader-backed
// provider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/beepwise"

// Metrics holds all metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// FramesProcessed counts frames fed to the orchestrator. Attribute: mode.
	FramesProcessed metric.Int64Counter

	// Decisions counts terminal decisions. Attributes: kind, mode.
	Decisions metric.Int64Counter

	// Undetermined counts streams that ended without a decision. Attribute: mode.
	Undetermined metric.Int64Counter

	// DecisionLatency is the stream time, in seconds, at which the decision
	// was made. Attribute: kind.
	DecisionLatency metric.Float64Histogram

	// JudgeDuration tracks greeting-finished judgment latency. Attributes:
	// judge, status.
	JudgeDuration metric.Float64Histogram

	// JudgeErrors counts failed judgments. Attribute: judge.
	JudgeErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// ActiveSessions tracks the number of streams being analysed.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of clients of the stream server.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// judgeBuckets covers LLM round trips, in seconds.
var judgeBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// streamBuckets covers greeting lengths, in seconds.
var streamBuckets = []float64{
	1, 2, 4, 6, 8, 10, 15, 20, 30, 45, 60,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("beepwise.frames",
		metric.WithDescription("Audio frames processed by the orchestrator."),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("beepwise.decisions",
		metric.WithDescription("Greeting-end decisions by kind and mode."),
	); err != nil {
		return nil, err
	}
	if met.Undetermined, err = m.Int64Counter("beepwise.undetermined",
		metric.WithDescription("Streams that ended without a decision."),
	); err != nil {
		return nil, err
	}
	if met.DecisionLatency, err = m.Float64Histogram("beepwise.decision.stream_time",
		metric.WithDescription("Stream time at which the decision was made."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(streamBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JudgeDuration, err = m.Float64Histogram("beepwise.judge.duration",
		metric.WithDescription("Latency of greeting-finished judgments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(judgeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JudgeErrors, err = m.Int64Counter("beepwise.judge.errors",
		metric.WithDescription("Failed greeting-finished judgments."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("beepwise.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("beepwise.active_sessions",
		metric.WithDescription("Streams currently being analysed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("beepwise.streamserver.active_streams",
		metric.WithDescription("Clients currently receiving audio from the stream server."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("beepwise.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level [Metrics] built on
// [otel.GetMeterProvider] at first use. It panics if instrument creation
// fails, which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecision counts a decision and records when in the stream it
// happened.
func (m *Metrics) RecordDecision(ctx context.Context, kind, mode string, decidedAt float64) {
	m.Decisions.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("mode", mode)))
	m.DecisionLatency.Record(ctx, decidedAt, metric.WithAttributes(Attr("kind", kind)))
}

// RecordUndetermined counts a stream that ended without a decision.
func (m *Metrics) RecordUndetermined(ctx context.Context, mode string) {
	m.Undetermined.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
}

// RecordJudgment records one judge call. A non-nil err also increments
// JudgeErrors.
func (m *Metrics) RecordJudgment(ctx context.Context, judge string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.JudgeErrors.Add(ctx, 1, metric.WithAttributes(Attr("judge", judge)))
	}
	m.JudgeDuration.Record(ctx, seconds, metric.WithAttributes(Attr("judge", judge), Attr("status", status)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}
