package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// teeHandler fans records out to several handlers.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}

	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}

	return out
}

// WithTerminal returns a logger that also writes records at or above level
// to w as plain text lines. The REPL passes the terminal arbiter's background
// writer so log lines land above the prompt instead of inside it.
func WithTerminal(logger *slog.Logger, w io.Writer, level slog.Leveler) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	terminal := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: terminalAttr,
	})

	return slog.New(teeHandler{logger.Handler(), terminal})
}

func terminalAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.TimeKey {
		return slog.Attr{}
	}

	return redactAttr(groups, attr)
}
