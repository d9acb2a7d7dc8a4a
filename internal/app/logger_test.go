package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerHonorsConfiguredLevel(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "warn"})
	require.False(t, logger.Enabled(ctx, slog.LevelInfo))
	require.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = NewLogger(&Config{LogLevel: "debug"})
	require.True(t, logger.Enabled(ctx, slog.LevelDebug))

	// Unknown or missing levels fall back to info.
	logger = NewLogger(&Config{LogLevel: "verbose"})
	require.False(t, logger.Enabled(ctx, slog.LevelDebug))
	require.True(t, logger.Enabled(ctx, slog.LevelInfo))

	logger = NewLogger(nil)
	require.True(t, logger.Enabled(ctx, slog.LevelInfo))
}
