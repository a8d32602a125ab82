package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// NewLogger builds the process-wide JSON logger. Timestamps are normalized
// to UTC so log lines from different deployments collate; an unrecognized
// level falls back to info rather than failing startup.
func NewLogger(level string) *slog.Logger {
	return newLoggerTo(os.Stdout, level)
}

func newLoggerTo(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: utcTimestamps,
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func utcTimestamps(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}
