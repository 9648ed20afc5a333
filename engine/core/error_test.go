package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Should expose code and wrapped cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewError(cause, ErrCodeStorageUnavailable, map[string]any{"key": "stage:1-1:output"})

		assert.Equal(t, "STORAGE_UNAVAILABLE: connection refused", err.Error())
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("Should render bare code when no cause", func(t *testing.T) {
		err := NewError(nil, ErrCodeNotFound, nil)

		assert.Equal(t, "NOT_FOUND", err.Error())
		assert.NotNil(t, err.Details)
	})

	t.Run("Should match sentinels by code via errors.Is", func(t *testing.T) {
		err := fmt.Errorf("stage failed: %w", NewError(nil, ErrCodeToolMissing, map[string]any{"tool": "sum"}))

		assert.True(t, errors.Is(err, NewError(nil, ErrCodeToolMissing, nil)))
		assert.False(t, errors.Is(err, NewError(nil, ErrCodeNotFound, nil)))
	})

	t.Run("Should extract code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", NewError(errors.New("inner"), ErrCodeInvalidDefinition, nil))

		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeInvalidDefinition, code)
		assert.True(t, HasCode(err, ErrCodeInvalidDefinition))
	})

	t.Run("Should report no code for plain errors", func(t *testing.T) {
		_, ok := CodeOf(errors.New("plain"))

		assert.False(t, ok)
		assert.False(t, HasCode(errors.New("plain"), ErrCodeNotFound))
	})
}

func TestRedactError(t *testing.T) {
	t.Run("Should redact API-key shaped substrings", func(t *testing.T) {
		err := errors.New("401 unauthorized: key sk-abcdefghijklmnop rejected")

		out := RedactError(err)

		assert.NotContains(t, out, "sk-abcdefghijklmnop")
		assert.Contains(t, out, "[REDACTED]")
	})

	t.Run("Should pass short benign messages through", func(t *testing.T) {
		assert.Equal(t, "timeout", RedactError(errors.New("timeout")))
	})

	t.Run("Should return empty string for nil", func(t *testing.T) {
		assert.Equal(t, "", RedactError(nil))
	})
}
