package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "trace", want: TraceLevel},
		{in: "TRACE", want: TraceLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: " info ", want: zapcore.InfoLevel},
		{in: "", want: zapcore.InfoLevel},
		{in: "warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "verbose", want: zapcore.InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown log level")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "trace", LevelName(TraceLevel))
	assert.Equal(t, "debug", LevelName(zapcore.DebugLevel))
	assert.Equal(t, "error", LevelName(zapcore.ErrorLevel))
	assert.Less(t, int8(TraceLevel), int8(zapcore.DebugLevel))
}

func TestEncodeLevel_Trace(t *testing.T) {
	buf := newBufferedLogger(t, TraceLevel)
	buf.logger.Trace(t.Context(), "response body")

	assert.Contains(t, buf.String(), `"level":"trace"`)
}
