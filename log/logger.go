package log

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// thresholdHandler drops records below a shared, runtime-adjustable minimum
// level before they reach the wrapped handler.
type thresholdHandler struct {
	next slog.Handler
	min  *slog.LevelVar
}

func (h thresholdHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return lvl >= h.min.Level() && h.next.Enabled(ctx, lvl)
}

func (h thresholdHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.min.Level() {
		return nil
	}

	return h.next.Handle(ctx, r) //nolint:wrapcheck // Pass-through handler.
}

func (h thresholdHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return thresholdHandler{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h thresholdHandler) WithGroup(name string) slog.Handler {
	return thresholdHandler{next: h.next.WithGroup(name), min: h.min}
}

var (
	loggerPtr atomic.Pointer[slog.Logger]
	minLevel  slog.LevelVar
)

func init() {
	minLevel.Set(slog.LevelDebug)
	SetLogger(nil)
}

// SetLogger sets the logger shared by all gpuprof packages. Records pass
// through the component threshold (see [SetMinLevel]) before reaching l.
// Pass nil to discard all output, which is the default.
//
// Safe for concurrent use with logging from any goroutine.
func SetLogger(l *slog.Logger) {
	if l == nil {
		loggerPtr.Store(slog.New(nopHandler{}))
		return
	}

	loggerPtr.Store(slog.New(thresholdHandler{next: l.Handler(), min: &minLevel}))
}

// Logger returns the shared component logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// SetMinLevel sets the component's minimum severity. The threshold applies
// on top of whatever level the configured handler already enforces.
func SetMinLevel(lvl Level) {
	minLevel.Set(lvl.SlogLevel())
}

// MinLevel returns the component's current minimum severity.
func MinLevel() slog.Level {
	return minLevel.Level()
}

// Suppress raises the component's minimum severity to errors only.
func Suppress() {
	SetMinLevel(LevelError)
}
