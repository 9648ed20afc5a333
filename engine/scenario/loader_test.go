package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
name: research
version: "1.2"
description: two-stage research flow
validModels:
  - gpt-4o
  - gpt-4o-mini
metadata:
  team: platform
stages:
  - id: 1
    name: gather
    systemPrompt: You are a careful researcher.
    temperature: 0.2
    maxTokens: 2048
    userPrompts:
      - template: "Collect facts about {{topic}}"
        responseFormatConfig:
          type: JsonObject
  - id: 2
    name: summarize
    userPrompts:
      - template: "Summarize {{1-1:output}}"
        temperature: 0.7
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("Should parse a YAML scenario file", func(t *testing.T) {
		def, err := LoadFile(writeTemp(t, "research.yaml", sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, "research", def.Name)
		assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, def.ValidModels)
		require.Len(t, def.Stages, 2)
		assert.Equal(t, "You are a careful researcher.", def.Stages[0].SystemPrompt)
		require.NotNil(t, def.Stages[0].Temperature)
		assert.InDelta(t, 0.2, *def.Stages[0].Temperature, 1e-9)
		require.NotNil(t, def.Stages[0].MaxTokens)
		assert.Equal(t, 2048, *def.Stages[0].MaxTokens)
		require.NotNil(t, def.Stages[0].UserPrompts[0].ResponseFormatConfig)
		assert.Equal(t, FormatJSONObject, def.Stages[0].UserPrompts[0].ResponseFormatConfig.Type)
	})

	t.Run("Should parse the yml extension case-insensitively", func(t *testing.T) {
		def, err := LoadFile(writeTemp(t, "research.YML", sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, "research", def.Name)
	})

	t.Run("Should parse a JSON scenario file", func(t *testing.T) {
		content := `{
			"name": "echo",
			"validModels": ["m1"],
			"stages": [
				{"id": 1, "name": "only", "userPrompts": [{"template": "Hello {{sessionId}}"}]}
			]
		}`
		def, err := LoadFile(writeTemp(t, "echo.JSON", content))
		require.NoError(t, err)

		assert.Equal(t, "echo", def.Name)
		require.Len(t, def.Stages, 1)
		assert.Equal(t, "Hello {{sessionId}}", def.Stages[0].UserPrompts[0].Template)
	})

	t.Run("Should wrap deserialization failures with the file path", func(t *testing.T) {
		path := writeTemp(t, "broken.yaml", "name: [unterminated")

		_, err := LoadFile(path)
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidDefinition))
		var coreErr *core.Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, path, coreErr.Details["path"])
	})

	t.Run("Should reject unsupported extensions", func(t *testing.T) {
		_, err := LoadFile(writeTemp(t, "scenario.toml", "name = 'x'"))
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidDefinition))
	})

	t.Run("Should fail on a missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidDefinition))
	})

	t.Run("Should round-trip a definition through YAML", func(t *testing.T) {
		original, err := LoadFile(writeTemp(t, "research.yaml", sampleYAML))
		require.NoError(t, err)

		encoded, err := yaml.Marshal(original)
		require.NoError(t, err)
		reloaded, err := loadBytes("roundtrip.yaml", encoded)
		require.NoError(t, err)

		assert.Equal(t, original, reloaded)
	})
}
