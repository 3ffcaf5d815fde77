// Package telemetry starts the OpenTelemetry trace and metric pipelines of a
// repotrack process and exports them over OTLP, by gRPC or HTTP/protobuf.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//	metrics, err := tracking.NewMetrics(tel.Meter(tracking.InstrumentationName))
//
// The providers are installed as the otel globals, so the tracking client's
// spans reach the collector without being handed a tracer.
//
// A collector that cannot be configured does not stop the process: the
// failing pipeline is skipped and Err reports why.
//
// Tests use NewTestTelemetry, which keeps spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry(t)
//	...
//	assert.Equal(t, []string{"tracking.GetAcls"}, tt.SpanNames())
//	assert.Equal(t, int64(1), tt.Counter(t, "repotrack.tracking.requests.total"))
package telemetry
