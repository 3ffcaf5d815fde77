package logging

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redacted        = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
	maxPatternLen   = 200
)

// Secret returns a field showing only the length of s.
func Secret(key string, s config.Secret) zap.Field {
	return RedactedString(key, s.Value())
}

// RedactedString returns a field showing only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactor decides which keys and values are hidden.
type redactor struct {
	keys     []string
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	r := &redactor{}
	if !cfg.Enabled {
		return r, nil
	}
	for _, k := range cfg.Fields {
		r.keys = append(r.keys, normalizeKey(k))
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// normalizeKey folds case and treats '-' like '_', so header names match field names.
func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "-", "_")
}

// hidesKey reports whether key names a secret. A configured name matches the
// whole key or its last '_' or '.' separated part, so "x-alfresco-search-secret"
// and "repository.api_key" match "secret" and "api_key".
func (r *redactor) hidesKey(key string) bool {
	k := normalizeKey(key)
	for _, s := range r.keys {
		if k == s || strings.HasSuffix(k, "_"+s) || strings.HasSuffix(k, "."+s) {
			return true
		}
	}
	return false
}

func (r *redactor) hidesValue(val string) bool {
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

func (r *redactor) scrubMessage(msg string) string {
	for _, re := range r.patterns {
		msg = re.ReplaceAllString(msg, redacted)
	}
	return msg
}

// field returns the redacted replacement of f, if any.
func (r *redactor) field(f zapcore.Field) (zapcore.Field, bool) {
	if r.hidesKey(f.Key) {
		return zap.String(f.Key, redacted), true
	}
	if f.Type == zapcore.StringType && r.hidesValue(f.String) {
		return zap.String(f.Key, redactedPattern), true
	}
	return f, false
}

// RedactingEncoder hides secret fields before they reach the wrapped encoder.
// Fields added per entry go through EncodeEntry; fields bound with Logger.With
// go through the Add methods.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// NewRedactingEncoder wraps base with the rules of cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, r: r}, nil
}

// EncodeEntry implements zapcore.Encoder.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.r.scrubMessage(ent.Message)
	out, copied := fields, false
	for i, f := range fields {
		repl, ok := e.r.field(f)
		if !ok {
			continue
		}
		if !copied {
			out, copied = slices.Clone(fields), true
		}
		out[i] = repl
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.r.hidesKey(key):
		e.Encoder.AddString(key, redacted)
	case e.r.hidesValue(val):
		e.Encoder.AddString(key, redactedPattern)
	default:
		e.Encoder.AddString(key, val)
	}
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r.hidesKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone implements zapcore.Encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}
