package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger. Format and minimum level come from
// LOG_FORMAT and LOG_LEVEL; an unknown level falls back to info.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	if cfg != nil {
		opts.Level = parseLogLevel(cfg.LogLevel)
		if cfg.LogFormat == "json" {
			return slog.New(slog.NewJSONHandler(os.Stdout, opts))
		}
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
