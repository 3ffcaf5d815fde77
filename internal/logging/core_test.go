package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap/zapcore"
)

func TestNewCore_Outputs(t *testing.T) {
	tests := []struct {
		name     string
		output   OutputConfig
		provider bool
		wantErr  bool
	}{
		{name: "stdout", output: OutputConfig{Stdout: true}},
		{name: "stderr", output: OutputConfig{Stderr: true}},
		{name: "otel with provider", output: OutputConfig{OTEL: true}, provider: true},
		{name: "stderr and otel", output: OutputConfig{Stderr: true, OTEL: true}, provider: true},
		{name: "otel without provider", output: OutputConfig{OTEL: true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Output = tt.output
			var provider log.LoggerProvider
			if tt.provider {
				provider = noop.NewLoggerProvider()
			}

			core, err := newCore(cfg, provider)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, core.Enabled(zapcore.InfoLevel))
			assert.False(t, core.Enabled(zapcore.DebugLevel))
		})
	}
}

func TestOutputConfig_Writer(t *testing.T) {
	assert.Nil(t, OutputConfig{OTEL: true}.writer())
	assert.NotNil(t, OutputConfig{Stdout: true}.writer())
	assert.NotNil(t, OutputConfig{Stderr: true}.writer())
}
