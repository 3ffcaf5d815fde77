package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// bufferedLogger is a Logger built like NewLogger but writing to memory.
type bufferedLogger struct {
	zaptest.Buffer
	logger *Logger
}

func newBufferedLogger(t *testing.T, level zapcore.Level) *bufferedLogger {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Level = level
	cfg.Sampling.Enabled = false

	b := &bufferedLogger{}
	enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	require.NoError(t, err)
	core := zapcore.NewCore(enc, &b.Buffer, cfg.Level)
	b.logger = &Logger{zap: zap.New(core), config: cfg}
	return b
}
