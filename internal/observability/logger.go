package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON on stdout, debug in dev, with
// trace/span ids attached when a span is active. It also becomes slog's default.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	log := slog.New(NewTraceHandler(handler))
	slog.SetDefault(log)

	return log
}

// NopLogger discards everything; used by tests and the CLI's quiet mode.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
