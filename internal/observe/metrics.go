// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/anvret/vocifer"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// FlushDuration tracks how long a buffered-audio flush takes end to end
	// (encode, enqueue, dispatch).
	FlushDuration metric.Float64Histogram

	// BatchDuration tracks batch transcription round-trip latency.
	BatchDuration metric.Float64Histogram

	// MessageProcessing tracks inbound message decode-and-dispatch latency.
	MessageProcessing metric.Float64Histogram

	// HTTPRequestDuration tracks health/metrics endpoint latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// MessagesSent counts dispatched protocol messages. Use with attributes:
	//   attribute.String("type", ...), attribute.String("priority", ...)
	MessagesSent metric.Int64Counter

	// MessagesReceived counts decoded inbound messages by type.
	MessagesReceived metric.Int64Counter

	// MessagesFailed counts send and decode failures by reason.
	MessagesFailed metric.Int64Counter

	// Reconnects counts reconnection attempts by outcome.
	Reconnects metric.Int64Counter

	// DroppedSamples counts audio samples lost to ring buffer overflow.
	DroppedSamples metric.Int64Counter

	// SilentFramesDropped counts frames suppressed by the voice gate.
	SilentFramesDropped metric.Int64Counter

	// TranscriptSegments counts finalized transcript segments by source.
	TranscriptSegments metric.Int64Counter

	// StateTransitions counts session state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of messages waiting for dispatch.
	QueueDepth metric.Int64Gauge

	// PendingResponses tracks requests awaiting a correlated reply.
	PendingResponses metric.Int64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// streaming transcription latencies.
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
	if met.FlushDuration, err = m.Float64Histogram("vocifer.flush.duration",
		metric.WithDescription("Latency of a buffered-audio flush."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("vocifer.batch.duration",
		metric.WithDescription("Round-trip latency of batch transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MessageProcessing, err = m.Float64Histogram("vocifer.message.processing",
		metric.WithDescription("Inbound message decode and dispatch latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocifer.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.MessagesSent, err = m.Int64Counter("vocifer.messages.sent",
		metric.WithDescription("Dispatched protocol messages by type and priority."),
	); err != nil {
		return nil, err
	}
	if met.MessagesReceived, err = m.Int64Counter("vocifer.messages.received",
		metric.WithDescription("Decoded inbound messages by type."),
	); err != nil {
		return nil, err
	}
	if met.MessagesFailed, err = m.Int64Counter("vocifer.messages.failed",
		metric.WithDescription("Send and decode failures by reason."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("vocifer.reconnects",
		metric.WithDescription("Reconnection attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSamples, err = m.Int64Counter("vocifer.audio.dropped_samples",
		metric.WithDescription("Audio samples lost to ring buffer overflow."),
	); err != nil {
		return nil, err
	}
	if met.SilentFramesDropped, err = m.Int64Counter("vocifer.audio.silent_frames",
		metric.WithDescription("Frames suppressed by the voice activity gate."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("vocifer.transcript.segments",
		metric.WithDescription("Finalized transcript segments by source."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("vocifer.session.state_transitions",
		metric.WithDescription("Session state changes by from and to state."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.QueueDepth, err = m.Int64Gauge("vocifer.queue.depth",
		metric.WithDescription("Messages waiting for dispatch."),
	); err != nil {
		return nil, err
	}
	if met.PendingResponses, err = m.Int64Gauge("vocifer.pending.responses",
		metric.WithDescription("Requests awaiting a correlated reply."),
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

// RecordSent records a dispatched message with the standard attribute set.
func (m *Metrics) RecordSent(ctx context.Context, msgType, priority string) {
	m.MessagesSent.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", msgType),
			attribute.String("priority", priority),
		),
	)
}

// RecordFailure records a send or decode failure.
func (m *Metrics) RecordFailure(ctx context.Context, reason string) {
	m.MessagesFailed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordStateTransition records a session state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordFlush records the latency of one buffered-audio flush.
func (m *Metrics) RecordFlush(ctx context.Context, elapsed time.Duration) {
	m.FlushDuration.Record(ctx, elapsed.Seconds())
}

// RecordBatch records one batch transcription round trip with its outcome.
func (m *Metrics) RecordBatch(ctx context.Context, elapsed time.Duration, status string) {
	m.BatchDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}
