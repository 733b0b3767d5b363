// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/rexvoice/rex"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// InferenceDuration tracks speech-to-text transcription latency.
	InferenceDuration metric.Float64Histogram

	// QueueWaitDuration tracks how long utterances sit in the queue before
	// the transcription worker picks them up.
	QueueWaitDuration metric.Float64Histogram

	// DispatchDuration tracks command handler execution latency.
	DispatchDuration metric.Float64Histogram

	// EndToEndDuration tracks utterance-end to dispatch-complete latency.
	EndToEndDuration metric.Float64Histogram

	// --- Counters ---

	// FramesIngested counts frames offered to the frame channel, dropped
	// or not.
	FramesIngested metric.Int64Counter

	// FramesDropped counts frames discarded because the frame channel was full.
	FramesDropped metric.Int64Counter

	// UtterancesEmitted counts utterances flushed by the segmenter.
	UtterancesEmitted metric.Int64Counter

	// UtterancesDropped counts pending utterances evicted on queue overflow.
	UtterancesDropped metric.Int64Counter

	// Commands counts routed transcripts. Use with attributes:
	//   attribute.String("pattern", ...), attribute.String("backend", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// --- Error counters ---

	// TranscriptionErrors counts non-fatal ASR failures.
	TranscriptionErrors metric.Int64Counter

	// BackendErrors counts media backend call failures. Use with attribute:
	//   attribute.String("backend", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the current occupancy of the bounded channels. Use
	// with attribute: attribute.String("queue", "frames"|"utterances").
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.InferenceDuration, err = m.Float64Histogram("rex.inference.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueWaitDuration, err = m.Float64Histogram("rex.queue_wait.duration",
		metric.WithDescription("Time utterances spend queued before transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("rex.dispatch.duration",
		metric.WithDescription("Latency of command handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EndToEndDuration, err = m.Float64Histogram("rex.e2e.duration",
		metric.WithDescription("Utterance-end to dispatch-complete latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesIngested, err = m.Int64Counter("rex.frames.ingested",
		metric.WithDescription("Total audio frames accepted into the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("rex.frames.dropped",
		metric.WithDescription("Total audio frames discarded on overflow."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesEmitted, err = m.Int64Counter("rex.utterances.emitted",
		metric.WithDescription("Total utterances flushed by the segmenter."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("rex.utterances.dropped",
		metric.WithDescription("Total utterances evicted on queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("rex.commands",
		metric.WithDescription("Total routed transcripts by pattern, backend, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranscriptionErrors, err = m.Int64Counter("rex.transcription.errors",
		metric.WithDescription("Total non-fatal transcription failures."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("rex.backend.errors",
		metric.WithDescription("Total media backend call failures by backend."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("rex.queue.depth",
		metric.WithDescription("Current occupancy of the bounded pipeline channels."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("rex.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records a routed transcript with the standard attribute set.
// Use pattern "" for unmatched transcripts and status "ok", "error", or
// "unmatched".
func (m *Metrics) RecordCommand(ctx context.Context, pattern, backend, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pattern", pattern),
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError records a media backend call failure.
func (m *Metrics) RecordBackendError(ctx context.Context, backend string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordQueueDepth adjusts the queue depth gauge for the named queue by
// delta (+1 on enqueue, -1 on dequeue or drop).
func (m *Metrics) RecordQueueDepth(ctx context.Context, queue string, delta int64) {
	m.QueueDepth.Add(ctx, delta,
		metric.WithAttributes(attribute.String("queue", queue)),
	)
}
