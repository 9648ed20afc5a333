package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryCtx(t *testing.T) context.Context {
	t.Helper()
	return logger.ContextWithLogger(context.Background(), logger.NewNopLogger())
}

func prompt(name string) *scenario.ScenarioPrompt {
	return &scenario.ScenarioPrompt{
		Name: name,
		Stages: []scenario.RuntimeStage{
			{ID: 1, Name: "only", Turns: []scenario.PromptTurn{{Role: scenario.RoleUser, Content: "hi"}}},
		},
	}
}

func TestRegistry(t *testing.T) {
	t.Run("Should reject construction without stores", func(t *testing.T) {
		_, err := NewRegistry(registryCtx(t), nil)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidInput))
	})

	t.Run("Should serve warm-up results from the cache", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{NewMemoryStore(prompt("Echo"))})
		require.NoError(t, err)
		defer reg.Close()

		got, err := reg.GetScenario(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, "Echo", got.Name)
	})

	t.Run("Should look names up case-insensitively", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{NewMemoryStore(prompt("Research"))})
		require.NoError(t, err)
		defer reg.Close()

		got, err := reg.GetScenario(ctx, "RESEARCH")
		require.NoError(t, err)
		assert.Equal(t, "Research", got.Name)
	})

	t.Run("Should let a later store win name ties", func(t *testing.T) {
		ctx := registryCtx(t)
		first := prompt("dup")
		second := prompt("dup")
		second.Metadata = map[string]string{"source": "second"}
		reg, err := NewRegistry(ctx, []ScenarioStore{NewMemoryStore(first), NewMemoryStore(second)})
		require.NoError(t, err)
		defer reg.Close()

		got, err := reg.GetScenario(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Metadata["source"])
	})

	t.Run("Should fan out to stores for a scenario added after warm-up", func(t *testing.T) {
		ctx := registryCtx(t)
		store := NewMemoryStore()
		reg, err := NewRegistry(ctx, []ScenarioStore{store})
		require.NoError(t, err)
		defer reg.Close()
		_, err = reg.GetScenario(ctx, "late")
		require.Error(t, err)

		require.NoError(t, store.StoreScenario(ctx, prompt("late")))

		got, err := reg.GetScenario(ctx, "late")
		require.NoError(t, err)
		assert.Equal(t, "late", got.Name)
	})

	t.Run("Should fail NotFound for an unknown scenario", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{NewMemoryStore()})
		require.NoError(t, err)
		defer reg.Close()

		_, err = reg.GetScenario(ctx, "ghost")
		assert.True(t, core.HasCode(err, core.ErrCodeNotFound))
	})

	t.Run("Should warm up to an empty cache from an empty store set", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{NewMemoryStore()})
		require.NoError(t, err)
		defer reg.Close()

		names, err := reg.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("Should list cached names sorted", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{
			NewMemoryStore(prompt("zeta"), prompt("alpha"), prompt("mid")),
		})
		require.NoError(t, err)
		defer reg.Close()

		names, err := reg.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	})

	t.Run("Should pick up new definitions on refresh", func(t *testing.T) {
		ctx := registryCtx(t)
		store := NewMemoryStore(prompt("original"))
		reg, err := NewRegistry(ctx, []ScenarioStore{store})
		require.NoError(t, err)
		defer reg.Close()
		require.NoError(t, store.StoreScenario(ctx, prompt("added")))

		require.NoError(t, reg.Refresh(ctx))

		names, err := reg.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"added", "original"}, names)
	})

	t.Run("Should be safe for concurrent lookups", func(t *testing.T) {
		ctx := registryCtx(t)
		reg, err := NewRegistry(ctx, []ScenarioStore{
			NewMemoryStore(prompt("a"), prompt("b"), prompt("c")),
		})
		require.NoError(t, err)
		defer reg.Close()

		var wg sync.WaitGroup
		for i := 0; i < 24; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := []string{"a", "b", "c"}[i%3]
				got, err := reg.GetScenario(ctx, name)
				assert.NoError(t, err)
				assert.Equal(t, name, got.Name)
			}(i)
		}
		wg.Wait()
	})
}

func TestFilesystemStore(t *testing.T) {
	writeScenario := func(t *testing.T, dir, file, name string) {
		t.Helper()
		content := "name: " + name + "\nvalidModels: [m1]\nstages:\n  - id: 1\n    name: only\n    userPrompts:\n      - template: hello\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600))
	}

	t.Run("Should load scenarios from directory files", func(t *testing.T) {
		ctx := registryCtx(t)
		dir := t.TempDir()
		writeScenario(t, dir, "one.yaml", "one")
		writeScenario(t, dir, "two.yml", "two")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))
		store := NewFilesystemStore(dir, nil)

		names, err := store.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, names)
	})

	t.Run("Should skip unparseable files and keep the rest", func(t *testing.T) {
		ctx := registryCtx(t)
		dir := t.TempDir()
		writeScenario(t, dir, "good.yaml", "good")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("stages: [unterminated"), 0o600))
		store := NewFilesystemStore(dir, nil)

		names, err := store.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, names)
	})

	t.Run("Should resolve names case-insensitively", func(t *testing.T) {
		ctx := registryCtx(t)
		dir := t.TempDir()
		writeScenario(t, dir, "one.yaml", "CasedName")
		store := NewFilesystemStore(dir, nil)

		got, err := store.GetScenario(ctx, "casedname")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "CasedName", got.Name)
	})

	t.Run("Should return nil for an unknown scenario", func(t *testing.T) {
		store := NewFilesystemStore(t.TempDir(), nil)

		got, err := store.GetScenario(registryCtx(t), "ghost")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should treat a missing directory as empty", func(t *testing.T) {
		store := NewFilesystemStore(filepath.Join(t.TempDir(), "absent"), nil)

		all, err := store.GetAllScenarios(registryCtx(t))
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Should layer stored scenarios over files and honor deletes", func(t *testing.T) {
		ctx := registryCtx(t)
		dir := t.TempDir()
		writeScenario(t, dir, "one.yaml", "one")
		store := NewFilesystemStore(dir, nil)

		require.NoError(t, store.StoreScenario(ctx, prompt("runtime")))
		names, err := store.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "runtime"}, names)

		require.NoError(t, store.DeleteScenario(ctx, "one"))
		names, err = store.ListScenarioNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"runtime"}, names)
	})
}
