package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Schema is a JSON schema document in map form.
type Schema map[string]any

type Result = jsonschema.EvaluationResult

func (s *Schema) String() string {
	bytes, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(bytes)
}

// Compile parses the schema through the jsonschema compiler, surfacing
// malformed documents at scenario-build time instead of at request time.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	if s == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return CompileString(string(bytes))
}

// Validate evaluates value against the schema and fails when it does not
// conform.
func (s *Schema) Validate(_ context.Context, value any) (*Result, error) {
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	if compiled == nil {
		return nil, nil
	}
	result := compiled.Validate(value)
	if result.Valid {
		return result, nil
	}
	return nil, fmt.Errorf("schema validation failed: %v", result.Errors)
}

// CompileString compiles a JSON schema literal.
func CompileString(literal string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile([]byte(literal))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}
