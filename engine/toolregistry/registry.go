package toolregistry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/scenariolab/orchestrator/engine/core"
)

// Function is one callable tool implementation: raw JSON arguments in,
// JSON string out. Implementations must be safe for concurrent invocation;
// the conversation loop may run several calls in parallel.
type Function func(ctx context.Context, args json.RawMessage) (string, error)

// Registry is a case-insensitive name to Function table consulted by the
// conversation loop during tool-call rounds.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]registered
}

type registered struct {
	name string
	fn   Function
}

func New() *Registry {
	return &Registry{functions: make(map[string]registered)}
}

// Register adds fn under name, replacing any previous registration with the
// same name regardless of case. Name must be non-empty.
func (r *Registry) Register(name string, fn Function) error {
	if strings.TrimSpace(name) == "" {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "name"})
	}
	if fn == nil {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "fn", "name": name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[strings.ToLower(name)] = registered{name: name, fn: fn}
	return nil
}

// TryGet looks up name case-insensitively.
func (r *Registry) TryGet(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.functions[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return entry.fn, true
}

// RegisteredNames returns the registered names, as given at Register time,
// in sorted order.
func (r *Registry) RegisteredNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for _, entry := range r.functions {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}
