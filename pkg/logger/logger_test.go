package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expected := NewNopLogger()
		ctx := ContextWithLogger(context.Background(), expected)

		actual := FromContext(ctx)

		require.NotNil(t, actual)
		assert.Equal(t, expected, actual)
	})

	t.Run("Should return default logger when no logger in context", func(t *testing.T) {
		log := FromContext(context.Background())

		require.NotNil(t, log)
		log.Info("message from default logger")
	})

	t.Run("Should return default logger for nil context", func(t *testing.T) {
		log := FromContext(nil) //nolint:staticcheck

		require.NotNil(t, log)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should write structured key-value pairs to the configured output", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf})

		log.Info("stage finished", "session_id", "s1", "duration", "12ms")

		out := buf.String()
		assert.Contains(t, out, "stage finished")
		assert.Contains(t, out, "session_id=s1")
		assert.Contains(t, out, "duration=12ms")
	})

	t.Run("Should suppress entries below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})

		log.Debug("hidden")
		log.Info("hidden too")
		log.Warn("visible")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "visible")
	})

	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

		log.Info("hello", "k", "v")

		assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	})

	t.Run("Should carry With fields into every entry", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf}).With("scenario", "echo")

		log.Info("stage started")

		assert.Contains(t, buf.String(), "scenario=echo")
	})
}

func TestLogLevel(t *testing.T) {
	t.Run("Should convert levels to charm levels", func(t *testing.T) {
		testCases := []struct {
			level    LogLevel
			expected int
		}{
			{DebugLevel, -4},
			{InfoLevel, 0},
			{WarnLevel, 4},
			{ErrorLevel, 8},
			{LogLevel("unknown"), 0},
		}
		for _, tc := range testCases {
			assert.Equal(t, tc.expected, int(tc.level.toCharmlogLevel()), "level %s", tc.level)
		}
	})
}
