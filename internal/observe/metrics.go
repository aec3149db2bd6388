// Package observe provides application-wide observability primitives for
// hearth: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// a Prometheus exporter set up by [InitProvider]. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hearth metrics.
const meterName = "github.com/MrWong99/hearth"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// SpeakDuration tracks how long one speak event took from dequeue to
	// completion. Attributes: kind.
	SpeakDuration metric.Float64Histogram

	// SpeakEvents counts processed speak events. Attributes: kind, status.
	SpeakEvents metric.Int64Counter

	// SpeakQueueDepth tracks events waiting for the speak loop.
	SpeakQueueDepth metric.Int64UpDownCounter

	// ListenSessions counts listen sessions. Attributes: backend, outcome.
	ListenSessions metric.Int64Counter

	// ListenDuration tracks the wall time of listen sessions.
	ListenDuration metric.Float64Histogram

	// RecognizeDuration tracks recognizer latency. Attributes: backend.
	RecognizeDuration metric.Float64Histogram

	// PassiveActivations counts fired passive records. Attributes: module,
	// status.
	PassiveActivations metric.Int64Counter

	// PassivePending tracks records waiting in the scheduler.
	PassivePending metric.Int64UpDownCounter

	// PluginLoads counts plugin load attempts. Attributes: module, valid.
	PluginLoads metric.Int64Counter

	// HomeServerRequests counts status client calls. Attributes: op, status.
	HomeServerRequests metric.Int64Counter

	// Commands counts dispatched voice commands. Attributes: module, outcome.
	Commands metric.Int64Counter

	// HTTPRequestDuration tracks status server request latency.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// short chimes to long spoken replies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SpeakDuration, err = m.Float64Histogram("hearth.speak.duration",
		metric.WithDescription("Time to process one speak event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ListenDuration, err = m.Float64Histogram("hearth.listen.duration",
		metric.WithDescription("Wall time of listen sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = m.Float64Histogram("hearth.recognize.duration",
		metric.WithDescription("Latency of speech recognition by backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hearth.http.request.duration",
		metric.WithDescription("Status server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SpeakEvents, err = m.Int64Counter("hearth.speak.events",
		metric.WithDescription("Processed speak events by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ListenSessions, err = m.Int64Counter("hearth.listen.sessions",
		metric.WithDescription("Listen sessions by backend and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PassiveActivations, err = m.Int64Counter("hearth.passive.activations",
		metric.WithDescription("Fired passive records by module and status."),
	); err != nil {
		return nil, err
	}
	if met.PluginLoads, err = m.Int64Counter("hearth.plugin.loads",
		metric.WithDescription("Plugin load attempts by module and validity."),
	); err != nil {
		return nil, err
	}
	if met.HomeServerRequests, err = m.Int64Counter("hearth.home_server.requests",
		metric.WithDescription("Home server requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("hearth.dispatch.commands",
		metric.WithDescription("Voice commands by handling module and outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SpeakQueueDepth, err = m.Int64UpDownCounter("hearth.speak.queue_depth",
		metric.WithDescription("Speak events waiting to be processed."),
	); err != nil {
		return nil, err
	}
	if met.PassivePending, err = m.Int64UpDownCounter("hearth.passive.pending",
		metric.WithDescription("Passive records waiting to fire."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSpeakEvent records one processed speak event.
func (m *Metrics) RecordSpeakEvent(ctx context.Context, kind, status string, d time.Duration) {
	m.SpeakEvents.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("status", status)))
	m.SpeakDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("kind", kind)))
}

// RecordListenSession records the outcome of one listen session.
func (m *Metrics) RecordListenSession(ctx context.Context, backend, outcome string, d time.Duration) {
	m.ListenSessions.Add(ctx, 1, metric.WithAttributes(Attr("backend", backend), Attr("outcome", outcome)))
	if outcome != "busy" {
		m.ListenDuration.Record(ctx, d.Seconds())
	}
}

// RecordPassiveActivation records one fired passive record.
func (m *Metrics) RecordPassiveActivation(ctx context.Context, module, status string) {
	m.PassiveActivations.Add(ctx, 1, metric.WithAttributes(Attr("module", module), Attr("status", status)))
}

// RecordPluginLoad records one plugin load attempt.
func (m *Metrics) RecordPluginLoad(ctx context.Context, module string, valid bool) {
	m.PluginLoads.Add(ctx, 1, metric.WithAttributes(Attr("module", module), Attr("valid", strconv.FormatBool(valid))))
}

// RecordHomeServerRequest records one status client call.
func (m *Metrics) RecordHomeServerRequest(ctx context.Context, op, status string) {
	m.HomeServerRequests.Add(ctx, 1, metric.WithAttributes(Attr("op", op), Attr("status", status)))
}

// RecordRecognize records the latency of one recognition call.
func (m *Metrics) RecordRecognize(ctx context.Context, backend string, d time.Duration) {
	m.RecognizeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("backend", backend)))
}

// RecordCommand records one dispatched command. module is empty when no
// plugin accepted it.
func (m *Metrics) RecordCommand(ctx context.Context, module, outcome string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(Attr("module", module), Attr("outcome", outcome)))
}
