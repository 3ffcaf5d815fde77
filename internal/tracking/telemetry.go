package tracking

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/repotrack/internal/tracking"
)

// Metrics records per-operation request metrics.
type Metrics struct {
	requestsTotal metric.Int64Counter
	errorsTotal   metric.Int64Counter
	duration      metric.Float64Histogram
	records       metric.Int64Histogram

	initialized bool
}

// NewMetrics creates the instruments on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"repotrack.tracking.requests.total",
		metric.WithDescription("Total tracking requests by operation and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.errorsTotal, err = meter.Int64Counter(
		"repotrack.tracking.errors.total",
		metric.WithDescription("Failed tracking requests by operation and error kind"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"repotrack.tracking.request.duration.seconds",
		metric.WithDescription("Tracking request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.records, err = meter.Int64Histogram(
		"repotrack.tracking.records",
		metric.WithDescription("Records returned per tracking request"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(0, 1, 10, 50, 100, 500, 1000, 2000, 5000),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordRequest records one completed operation.
func (m *Metrics) RecordRequest(ctx context.Context, op string, records int, duration time.Duration, err error) {
	if m == nil || !m.initialized {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("kind", errorKind(err)),
		))
		return
	}
	m.records.Record(ctx, int64(records), metric.WithAttributes(attribute.String("operation", op)))
}

// errorKind classifies err for the kind attribute.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnexpectedStatus):
		return "status"
	case errors.Is(err, ErrMalformedPayload):
		return "parse"
	case errors.Is(err, ErrMethodUnreachable):
		return "unreachable"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ErrNoTransaction):
		return "no_transaction"
	case errors.Is(err, ErrMissingAclReaders):
		return "missing_readers"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "transport"
	}
}

// Tracer returns the tracer for the tracking package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// StartSpan starts a client span for op.
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String("tracking.operation", op)}, attrs...)
	return Tracer().Start(ctx, "tracking."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(all...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
