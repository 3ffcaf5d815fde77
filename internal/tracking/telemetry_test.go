package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter(InstrumentationName))
	require.NoError(t, err)
	return m, reader
}

func sumCounter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)
	assert.True(t, m.initialized)

	global, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.True(t, global.initialized)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(context.Background(), OpGetAcls, 1, time.Millisecond, nil)
	})
	assert.NotPanics(t, func() {
		(&Metrics{}).RecordRequest(context.Background(), OpGetAcls, 1, time.Millisecond, nil)
	})
}

func TestMetrics_RecordRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, OpGetAcls, 10, 5*time.Millisecond, nil)
	m.RecordRequest(ctx, OpGetAcls, 0, 5*time.Millisecond, &ParseError{Op: OpGetAcls, Err: errors.New("x")})

	assert.Equal(t, int64(2), sumCounter(t, reader, "repotrack.tracking.requests.total"))
	assert.Equal(t, int64(1), sumCounter(t, reader, "repotrack.tracking.errors.total"))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&UnexpectedStatusError{StatusCode: 500}, "status"},
		{&ParseError{Err: io.ErrUnexpectedEOF}, "parse"},
		{&MethodUnreachableError{StatusCode: 404}, "unreachable"},
		{&ChecksumMismatchError{}, "checksum"},
		{fmt.Errorf("x: %w", ErrNoTransaction), "no_transaction"},
		{fmt.Errorf("x: %w", ErrMissingAclReaders), "missing_readers"},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), "context"},
		{errors.New("connection refused"), "transport"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}

func TestHTTPClient_RecordsMetricsAndSpans(t *testing.T) {
	tt := telemetry.NewTestTelemetry(t)
	m, err := NewMetrics(tt.Meter(InstrumentationName))
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"acls":[{"id":1,"aclChangeSetId":1},{"id":2,"aclChangeSetId":1}]}`)
	}, WithMetrics(m))

	_, err = c.GetAcls(context.Background(), []AclChangeSet{{ID: 1}}, nil, 0)
	require.NoError(t, err)
	// the acls body has no diffs
	_, err = c.GetModelsDiff(context.Background(), nil)
	require.ErrorIs(t, err, ErrMalformedPayload)

	assert.Equal(t, int64(2), tt.Counter(t, "repotrack.tracking.requests.total"))
	assert.Equal(t, int64(1), tt.Counter(t, "repotrack.tracking.errors.total"))

	spans := tt.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "tracking."+OpGetAcls, spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, "tracking."+OpGetModelsDiff, spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}
