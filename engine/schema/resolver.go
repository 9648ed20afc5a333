package schema

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/scenariolab/orchestrator/engine/core"
)

// Registry maps type names to JSON schema literals. Types are registered at
// start-up, either directly as literals or by reflecting a Go value; the
// scenario builder then resolves response-format and function-parameter
// schemas through a pure lookup. Lookup is case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]string
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]string)}
}

// RegisterSchema stores a JSON schema literal under name, replacing any
// previous registration. The literal must compile.
func (r *Registry) RegisterSchema(name, literal string) error {
	if strings.TrimSpace(name) == "" {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "name"})
	}
	if _, err := CompileString(literal); err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"type_name": name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[strings.ToLower(name)] = literal
	return nil
}

// RegisterType reflects value into a JSON schema and stores it under name.
// Definitions are inlined so the stored literal is self-contained, the shape
// structured-output consumers expect.
func (r *Registry) RegisterType(name string, value any) error {
	if strings.TrimSpace(name) == "" {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "name"})
	}
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	generated := reflector.Reflect(value)
	raw, err := json.Marshal(generated)
	if err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"type_name": name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[strings.ToLower(name)] = string(raw)
	return nil
}

// Lookup returns the schema literal registered under name.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	literal, ok := r.schemas[strings.ToLower(name)]
	return literal, ok
}

// Resolver resolves a structured-output or function-parameter schema from
// either a literal JSON schema or a named type, returning the schema as a
// JSON string.
type Resolver struct {
	registry *Registry
}

func NewResolver(registry *Registry) *Resolver {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Resolver{registry: registry}
}

// ResolveType looks a named type up in the registry.
func (r *Resolver) ResolveType(typeName string) (string, bool) {
	return r.registry.Lookup(typeName)
}

// ResolveLiteral validates that literal is a well-formed JSON schema and
// returns it unchanged.
func (r *Resolver) ResolveLiteral(literal string) (string, error) {
	if _, err := CompileString(literal); err != nil {
		return "", core.NewError(err, core.ErrCodeInvalidDefinition, map[string]any{"schema": literal})
	}
	return literal, nil
}
