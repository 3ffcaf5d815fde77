package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is an enabled Telemetry whose spans and metrics stay in
// memory. It is installed as the otel globals until the test ends.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.InMemoryExporter
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry starts in-memory pipelines for tb.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	tel, err := New(context.Background(), cfg, WithSpanExporter(spans), WithMetricReader(reader))
	if err != nil {
		tb.Fatalf("start test telemetry: %v", err)
	}
	tb.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
	return &TestTelemetry{Telemetry: tel, spans: spans, reader: reader}
}

// Spans returns the spans ended so far, in end order.
func (t *TestTelemetry) Spans() tracetest.SpanStubs {
	return t.spans.GetSpans()
}

// SpanNames returns the names of Spans.
func (t *TestTelemetry) SpanNames() []string {
	spans := t.Spans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	return names
}

// Counter sums every data point of the int64 counter called name.
func (t *TestTelemetry) Counter(tb testing.TB, name string) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// Reset drops the recorded spans.
func (t *TestTelemetry) Reset() {
	t.spans.Reset()
}
