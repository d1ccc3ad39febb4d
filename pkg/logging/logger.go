package logging

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger initializes a global logger with the specified level.
// It configures a JSON handler with source location information.
func InitLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler)
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	return base.With(
		slog.String("component", component),
	)
}

// SetDefault installs a process-wide JSON logger at the given level string.
func SetDefault(level string) {
	slog.SetDefault(InitLogger(ParseLevel(level)))
}

// ParseLevel maps a config level string to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
