package scenario

import (
	"testing"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *Definition {
	return &Definition{
		Name:        "valid",
		ValidModels: []string{"m1"},
		Stages: []StageDefinition{
			{
				ID:          1,
				Name:        "only",
				UserPrompts: []UserPromptDefinition{{Template: "hi"}},
			},
		},
	}
}

func pathsOf(errors []ValidationError) []string {
	paths := make([]string, len(errors))
	for i, e := range errors {
		paths[i] = e.PropertyPath
	}
	return paths
}

func TestValidate(t *testing.T) {
	t.Run("Should accept a well-formed definition", func(t *testing.T) {
		assert.Empty(t, Validate(validDefinition()))
	})

	t.Run("Should require a name", func(t *testing.T) {
		def := validDefinition()
		def.Name = ""

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "name")
	})

	t.Run("Should require at least one valid model", func(t *testing.T) {
		def := validDefinition()
		def.ValidModels = nil

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "validModels")
	})

	t.Run("Should require at least one stage", func(t *testing.T) {
		def := validDefinition()
		def.Stages = nil

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages")
	})

	t.Run("Should require at least one user prompt per stage", func(t *testing.T) {
		def := validDefinition()
		def.Stages[0].UserPrompts = nil

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].userPrompts")
	})

	t.Run("Should accept boundary temperature and topP of exactly 1", func(t *testing.T) {
		def := validDefinition()
		one := 1.0
		def.Stages[0].Temperature = &one
		def.Stages[0].TopP = &one

		assert.Empty(t, Validate(def))
	})

	t.Run("Should reject temperature above 1", func(t *testing.T) {
		def := validDefinition()
		bad := 1.0001
		def.Stages[0].Temperature = &bad

		found := Validate(def)
		require.NotEmpty(t, found)
		assert.Contains(t, pathsOf(found), "stages[0].temperature")
	})

	t.Run("Should reject negative topP on a user prompt", func(t *testing.T) {
		def := validDefinition()
		bad := -0.1
		def.Stages[0].UserPrompts[0].TopP = &bad

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].userPrompts[0].topP")
	})

	t.Run("Should reject non-positive maxTokens", func(t *testing.T) {
		def := validDefinition()
		zero := 0
		def.Stages[0].MaxTokens = &zero

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].maxTokens")
	})

	t.Run("Should reject duplicate stage ids", func(t *testing.T) {
		def := validDefinition()
		def.Stages = append(def.Stages, StageDefinition{
			ID:          1,
			Name:        "dup",
			UserPrompts: []UserPromptDefinition{{Template: "again"}},
		})

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[1].id")
	})

	t.Run("Should reject JsonSchema with both schema and responseTypeName", func(t *testing.T) {
		def := validDefinition()
		def.Stages[0].UserPrompts[0].ResponseFormatConfig = &ResponseFormatConfig{
			Type:             FormatJSONSchema,
			Schema:           `{"type":"object"}`,
			ResponseTypeName: "Thing",
		}

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].userPrompts[0].responseFormatConfig")
	})

	t.Run("Should reject JsonSchema with neither schema nor responseTypeName", func(t *testing.T) {
		def := validDefinition()
		def.Stages[0].UserPrompts[0].ResponseFormatConfig = &ResponseFormatConfig{Type: FormatJSONSchema}

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].userPrompts[0].responseFormatConfig")
	})

	t.Run("Should reject an unknown response format type", func(t *testing.T) {
		def := validDefinition()
		def.Stages[0].UserPrompts[0].ResponseFormatConfig = &ResponseFormatConfig{Type: "Markdown"}

		found := Validate(def)
		assert.Contains(t, pathsOf(found), "stages[0].userPrompts[0].responseFormatConfig.type")
	})

	t.Run("Should fold violations into a single InvalidDefinition error", func(t *testing.T) {
		def := validDefinition()
		def.Name = ""
		def.ValidModels = nil

		err := ValidateStrict(def)
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidDefinition))
	})

	t.Run("Should pass strict validation for a well-formed definition", func(t *testing.T) {
		assert.NoError(t, ValidateStrict(validDefinition()))
	})
}
