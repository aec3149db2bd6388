package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

// sumFor returns the value of the int64 sum data point whose attributes
// contain all of want.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
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
		for _, kv := range want {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				continue outer
			}
		}
		return dp.Value
	}
	return 0
}

func TestRecordSpeakEvent(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpeakEvent(ctx, "text", "ok", 1200*time.Millisecond)
	m.RecordSpeakEvent(ctx, "text", "ok", 300*time.Millisecond)
	m.RecordSpeakEvent(ctx, "chime", "error", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hearth.speak.events", Attr("kind", "text"), Attr("status", "ok")); got != 2 {
		t.Errorf("text/ok = %d, want 2", got)
	}
	if got := sumFor(t, rm, "hearth.speak.events", Attr("kind", "chime"), Attr("status", "error")); got != 1 {
		t.Errorf("chime/error = %d, want 1", got)
	}

	hist := findMetric(rm, "hearth.speak.duration").Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("speak.duration samples = %d, want 3", total)
	}
}

func TestRecordListenSession_BusySkipsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordListenSession(ctx, "online", "recognized", time.Second)
	m.RecordListenSession(ctx, "online", "busy", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hearth.listen.sessions", Attr("outcome", "busy")); got != 1 {
		t.Errorf("busy sessions = %d, want 1", got)
	}
	hist := findMetric(rm, "hearth.listen.duration").Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("listen.duration data points = %+v, want a single sample", hist.DataPoints)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPassiveActivation(ctx, "timer", "ok")
	m.RecordPassiveActivation(ctx, "timer", "panic")
	m.RecordPluginLoad(ctx, "alarm", false)
	m.RecordHomeServerRequest(ctx, "home_status", "unchanged")

	rm := collect(t, reader)
	tests := []struct {
		name  string
		attrs []attribute.KeyValue
	}{
		{"hearth.passive.activations", []attribute.KeyValue{Attr("status", "panic")}},
		{"hearth.plugin.loads", []attribute.KeyValue{Attr("module", "alarm"), Attr("valid", "false")}},
		{"hearth.home_server.requests", []attribute.KeyValue{Attr("op", "home_status")}},
	}
	for _, tt := range tests {
		if got := sumFor(t, rm, tt.name, tt.attrs...); got != 1 {
			t.Errorf("%s%v = %d, want 1", tt.name, tt.attrs, got)
		}
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SpeakQueueDepth.Add(ctx, 3)
	m.SpeakQueueDepth.Add(ctx, -1)
	m.PassivePending.Add(ctx, 2, metric.WithAttributes())

	rm := collect(t, reader)
	if got := sumFor(t, rm, "hearth.speak.queue_depth"); got != 2 {
		t.Errorf("queue_depth = %d, want 2", got)
	}
	if got := sumFor(t, rm, "hearth.passive.pending"); got != 2 {
		t.Errorf("passive.pending = %d, want 2", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a, b := DefaultMetrics(), DefaultMetrics()
	if a == nil || a != b {
		t.Fatal("DefaultMetrics should return the same non-nil instance")
	}
}
