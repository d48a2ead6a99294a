package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestDefaultLazyInit(t *testing.T) {
	defaultLogger = nil
	require.NotNil(t, Default())
	assert.Same(t, defaultLogger, Default())
}

func TestWithContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), TenantIDKey, "t-1")
	ctx = WithContext(ctx, RequestIDKey, "req-1")

	assert.Equal(t, "t-1", ctx.Value(TenantIDKey))
	assert.Equal(t, "req-1", ctx.Value(RequestIDKey))
}

func TestFromContextDoesNotPanic(t *testing.T) {
	Init("debug", "json")

	ctx := WithContext(context.Background(), TraceIDKey, "trace-1")
	ctx = WithContext(ctx, ChapterIDKey, "ch-1")

	require.NotNil(t, FromContext(ctx))
	// 无上下文键时也应返回可用 logger
	require.NotNil(t, FromContext(context.Background()))
}
