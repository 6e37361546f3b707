package parley

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger configures the global slog logger to output structured JSON
// to stderr. Call this once at program startup before creating any nodes.
// The level controls the minimum log level (e.g. slog.LevelInfo, slog.LevelDebug).
func InitLogger(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a config-file level name to a slog level. Unknown or
// empty names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
