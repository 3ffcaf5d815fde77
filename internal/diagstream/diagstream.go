// Package diagstream records what a decoder has read from a response body so a
// parse failure can be reported with the surrounding bytes.
//
// The recording strategy is picked once from log verbosity:
//
//	trace  -> everything read, plus the rest of the body (bounded)
//	debug  -> a window around the failure point
//	other  -> nothing; the source reader is used untouched
package diagstream

import (
	"io"

	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultWindow is the window size used in debug mode.
	DefaultWindow = 250

	// everythingLimit bounds what the trace strategy keeps.
	everythingLimit = 1 << 20

	// DisabledMessage is the snippet reported when recording is off.
	DisabledMessage = "not available: set the log level to debug or trace"
)

// Mode is a recording strategy.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeWindow
	ModeEverything
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeWindow:
		return "window"
	case ModeEverything:
		return "everything"
	default:
		return "disabled"
	}
}

// Snippet yields the recorded bytes after a failure.
type Snippet interface {
	// Collect reads ahead from the source (within the strategy's bound) and returns
	// the recorded text. Further calls return the same text.
	Collect() string
}

// Strategy wraps response bodies according to its mode. The zero value is disabled.
type Strategy struct {
	mode   Mode
	window int
}

// Disabled returns a strategy that records nothing.
func Disabled() Strategy { return Strategy{} }

// Window returns a strategy keeping size bytes before the failure point and up to
// size bytes after it. Non-positive sizes use DefaultWindow.
func Window(size int) Strategy {
	if size <= 0 {
		size = DefaultWindow
	}
	return Strategy{mode: ModeWindow, window: size}
}

// Everything returns a strategy keeping the whole body up to 1MiB.
func Everything() Strategy { return Strategy{mode: ModeEverything} }

// ForLogger picks the strategy from the logger's enabled levels.
func ForLogger(l *zap.Logger, window int) Strategy {
	if l == nil {
		return Disabled()
	}
	core := l.Core()
	switch {
	case core.Enabled(logging.TraceLevel):
		return Everything()
	case core.Enabled(zap.DebugLevel):
		return Window(window)
	default:
		return Disabled()
	}
}

// Mode returns the strategy's mode.
func (s Strategy) Mode() Mode { return s.mode }

// Enabled reports whether the strategy records anything.
func (s Strategy) Enabled() bool { return s.mode != ModeDisabled }

// Wrap returns the reader the decoder should consume and the snippet to collect on
// failure. When disabled, src is returned as is and nothing is allocated.
func (s Strategy) Wrap(src io.Reader) (io.Reader, Snippet) {
	switch s.mode {
	case ModeWindow:
		w := &windowRecorder{src: src, size: s.window, buf: make([]byte, 0, 2*s.window)}
		return w, w
	case ModeEverything:
		e := &everythingRecorder{src: src, limit: everythingLimit}
		return e, e
	default:
		return src, disabledSnippet{}
	}
}

type disabledSnippet struct{}

func (disabledSnippet) Collect() string { return DisabledMessage }

// windowRecorder keeps the last size bytes read.
type windowRecorder struct {
	src       io.Reader
	size      int
	buf       []byte
	collected *string
}

func (w *windowRecorder) Read(p []byte) (int, error) {
	n, err := w.src.Read(p)
	if n > 0 {
		w.record(p[:n])
	}
	return n, err
}

func (w *windowRecorder) record(b []byte) {
	if len(b) >= w.size {
		w.buf = append(w.buf[:0], b[len(b)-w.size:]...)
		return
	}
	if over := len(w.buf) + len(b) - w.size; over > 0 {
		n := copy(w.buf, w.buf[over:])
		w.buf = w.buf[:n]
	}
	w.buf = append(w.buf, b...)
}

func (w *windowRecorder) Collect() string {
	if w.collected != nil {
		return *w.collected
	}
	ahead := make([]byte, w.size)
	n, _ := io.ReadFull(w.src, ahead)
	s := string(w.buf) + string(ahead[:n])
	w.collected = &s
	return s
}

// everythingRecorder keeps every byte read up to limit.
type everythingRecorder struct {
	src       io.Reader
	limit     int
	buf       []byte
	collected *string
}

func (e *everythingRecorder) Read(p []byte) (int, error) {
	n, err := e.src.Read(p)
	if n > 0 && len(e.buf) < e.limit {
		keep := p[:n]
		if room := e.limit - len(e.buf); len(keep) > room {
			keep = keep[:room]
		}
		e.buf = append(e.buf, keep...)
	}
	return n, err
}

func (e *everythingRecorder) Collect() string {
	if e.collected != nil {
		return *e.collected
	}
	if room := e.limit - len(e.buf); room > 0 {
		rest, _ := io.ReadAll(io.LimitReader(e.src, int64(room)))
		e.buf = append(e.buf, rest...)
	}
	s := string(e.buf)
	e.collected = &s
	return s
}
