package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger writing to stdout, configured by cfg.
// When cfg.Sentry.DSN is set, warnings and errors are also sent to Sentry.
// An unknown level falls back to info.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	return newLogger(os.Stdout, cfg, extractors...)
}

func newLogger(w io.Writer, cfg Config, extractors ...ContextExtractor) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	base := newHandler(w, cfg.Format, level)

	if cfg.Sentry.DSN == "" {
		return slog.New(NewLogHandlerDecorator(base, extractors...))
	}

	sentryHandler, err := newSentryHandler(cfg.Sentry)
	if err != nil {
		slog.New(base).Error("failed to initialize Sentry, logging to stdout only", slog.Any("error", err))
		return slog.New(NewLogHandlerDecorator(base, extractors...))
	}
	return slog.New(NewLogHandlerDecorator(newMultiHandler(base, sentryHandler), extractors...))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// Nop creates a logger that discards all output.
// Packages use it as the default when no logger is configured.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
