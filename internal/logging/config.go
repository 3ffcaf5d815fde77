package logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds logger construction settings. Applications build it with
// FromConfig; NewDefaultConfig is the starting point.
type Config struct {
	Level           zapcore.Level
	Format          string
	Output          OutputConfig
	Sampling        SamplingConfig
	Caller          bool
	StacktraceLevel zapcore.Level
	// Fields are added to every entry.
	Fields    map[string]string
	Redaction RedactionConfig
}

// OutputConfig selects where entries go. Stderr takes precedence over Stdout.
type OutputConfig struct {
	Stdout bool
	Stderr bool
	OTEL   bool
}

// SamplingConfig sets per-level budgets within each Tick.
type SamplingConfig struct {
	Enabled bool
	Tick    config.Duration
	Levels  map[zapcore.Level]LevelSamplingConfig
}

// LevelSamplingConfig keeps the first Initial entries with the same message,
// then every Thereafter-th. Thereafter 0 drops the rest.
type LevelSamplingConfig struct {
	Initial    int
	Thereafter int
}

// RedactionConfig lists the field names and value patterns that are hidden.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns JSON output on stdout at Info with redaction and sampling on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  DefaultLevelSamplingConfig(),
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "repotrack"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"api_key", "secret", "password", "token",
				"authorization", "credential", "private_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// DefaultLevelSamplingConfig samples Debug, Info and Warn. Trace is never
// sampled.
func DefaultLevelSamplingConfig() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		zapcore.DebugLevel: {Initial: 100, Thereafter: 10},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// FromConfig returns the default config with the level and format of lc.
func FromConfig(lc config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	level, err := LevelFromString(lc.Level)
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks c for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.Stderr && !c.Output.OTEL {
		return errors.New("at least one output must be enabled (stdout, stderr or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return errors.New("sampling tick must be > 0 when sampling enabled")
		}
		for lvl, b := range c.Sampling.Levels {
			if lvl >= zapcore.ErrorLevel {
				return fmt.Errorf("%s entries cannot be sampled", LevelName(lvl))
			}
			if b.Initial < 1 || b.Thereafter < 0 {
				return fmt.Errorf("invalid %s sampling budget %d/%d", LevelName(lvl), b.Initial, b.Thereafter)
			}
		}
	}
	if c.Redaction.Enabled {
		if _, err := newRedactor(c.Redaction); err != nil {
			return err
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return errors.New("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
