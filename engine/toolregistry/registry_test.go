package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFn(_ context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestRegistry(t *testing.T) {
	t.Run("Should register and look up case-insensitively", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Register("Sum", echoFn))

		fn, ok := reg.TryGet("sUM")
		require.True(t, ok)
		out, err := fn(context.Background(), json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, out)
	})

	t.Run("Should replace an existing registration", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Register("sum", func(context.Context, json.RawMessage) (string, error) {
			return "old", nil
		}))
		require.NoError(t, reg.Register("SUM", func(context.Context, json.RawMessage) (string, error) {
			return "new", nil
		}))

		fn, ok := reg.TryGet("sum")
		require.True(t, ok)
		out, err := fn(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "new", out)
		assert.Equal(t, []string{"SUM"}, reg.RegisteredNames())
	})

	t.Run("Should reject empty or blank names", func(t *testing.T) {
		reg := New()

		err := reg.Register("", echoFn)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidInput))

		err = reg.Register("   ", echoFn)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidInput))
	})

	t.Run("Should reject nil functions", func(t *testing.T) {
		reg := New()

		err := reg.Register("sum", nil)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidInput))
	})

	t.Run("Should miss unregistered names", func(t *testing.T) {
		reg := New()

		_, ok := reg.TryGet("nope")
		assert.False(t, ok)
	})

	t.Run("Should return names sorted", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.Register("zeta", echoFn))
		require.NoError(t, reg.Register("alpha", echoFn))
		require.NoError(t, reg.Register("mid", echoFn))

		assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.RegisteredNames())
	})

	t.Run("Should be safe under concurrent register and lookup", func(t *testing.T) {
		reg := New()
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				_ = reg.Register(fmt.Sprintf("fn-%d", i%4), echoFn)
			}(i)
			go func(i int) {
				defer wg.Done()
				reg.TryGet(fmt.Sprintf("FN-%d", i%4))
				reg.RegisteredNames()
			}(i)
		}
		wg.Wait()

		assert.Len(t, reg.RegisteredNames(), 4)
	})
}
