package logging

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// recordingTB captures failures instead of failing the test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := repoContext()
	tl.Trace(ctx, "response body", zap.String("operation", "GetAcls"))
	tl.Info(ctx, "page fetched", zap.Int("transactions", 3))

	tl.AssertLogged(t, TraceLevel, "response")
	tl.AssertLogged(t, zapcore.InfoLevel, "page")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "page")
	tl.AssertField(t, "response body", "operation", "GetAcls")
	tl.AssertField(t, "page fetched", "transactions", 3)
	tl.AssertField(t, "page fetched", "repository.core", "alfresco")
	tl.AssertNoSecrets(t, "s3cr3t")
	assert.Len(t, tl.All(), 2)

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestTestLogger_ReportsFailures(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "retrying with key s3cr3t", zap.String("header", "x-s3cr3t"))

	rec := &recordingTB{}
	tl.AssertLogged(rec, zapcore.ErrorLevel, "retrying")
	tl.AssertNotLogged(rec, zapcore.WarnLevel, "retrying")
	tl.AssertField(rec, "retrying with key s3cr3t", "header", "other")
	tl.AssertNoSecrets(rec, "s3cr3t")

	assert.Len(t, rec.errors, 5)
	assert.Contains(t, rec.errors[0], `warn:"retrying with key s3cr3t"`)
}
