package logging

import (
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/repotrack"

// newCore tees the enabled outputs and applies sampling. The OTEL output is
// skipped when provider is nil.
func newCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if w := cfg.Output.writer(); w != nil {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, w, cfg.Level))
	}

	if cfg.Output.OTEL && provider != nil {
		cores = append(cores, &levelRange{
			Core: otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(provider)),
			min:  cfg.Level,
			max:  zapcore.FatalLevel,
		})
	}

	if len(cores) == 0 {
		return nil, errors.New("no log output available")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// writer returns the local destination, nil when only OTEL is enabled.
func (o OutputConfig) writer() zapcore.WriteSyncer {
	switch {
	case o.Stderr:
		return zapcore.Lock(os.Stderr)
	case o.Stdout:
		return zapcore.Lock(os.Stdout)
	default:
		return nil
	}
}
