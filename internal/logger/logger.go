package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to w. Debug level is enabled
// outside production so local runs show pool and pipeline internals.
func New(w io.Writer, production bool) *slog.Logger {
	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// SetDefault installs a JSON logger as the process-wide default.
// Pass nil to log to stdout.
func SetDefault(w io.Writer, production bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := New(w, production)
	slog.SetDefault(l)
	return l
}
