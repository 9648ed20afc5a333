package scenario

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/scenariolab/orchestrator/engine/core"
	"gopkg.in/yaml.v3"
)

// LoadFile parses the scenario definition at path, dispatching on the file
// extension: ".json" decodes as JSON, ".yaml"/".yml" as YAML, both matched
// case-insensitively. Deserialization failures are wrapped with the file
// path and surfaced as InvalidDefinition.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidDefinition, map[string]any{"path": path})
	}
	return loadBytes(path, data)
}

func loadBytes(path string, data []byte) (*Definition, error) {
	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, core.NewError(err, core.ErrCodeInvalidDefinition, map[string]any{"path": path})
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, core.NewError(err, core.ErrCodeInvalidDefinition, map[string]any{"path": path})
		}
	default:
		return nil, core.NewError(nil, core.ErrCodeInvalidDefinition, map[string]any{
			"path":   path,
			"reason": "unsupported extension",
		})
	}
	return &def, nil
}
