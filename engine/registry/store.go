package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
)

// ScenarioStore is one pluggable scenario source. GetScenario returns
// (nil, nil) for an unknown name; lookups are case-insensitive. The
// registry relies on the three read methods; StoreScenario and
// DeleteScenario serve administrative flows.
type ScenarioStore interface {
	GetScenario(ctx context.Context, name string) (*scenario.ScenarioPrompt, error)
	GetAllScenarios(ctx context.Context) ([]*scenario.ScenarioPrompt, error)
	ListScenarioNames(ctx context.Context) ([]string, error)
	StoreScenario(ctx context.Context, prompt *scenario.ScenarioPrompt) error
	DeleteScenario(ctx context.Context, name string) error
}

var _ ScenarioStore = (*MemoryStore)(nil)

// MemoryStore is a mutable in-memory ScenarioStore, used by administrative
// flows and as the remote-store stand-in for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	scenarios map[string]*scenario.ScenarioPrompt
}

func NewMemoryStore(prompts ...*scenario.ScenarioPrompt) *MemoryStore {
	store := &MemoryStore{scenarios: make(map[string]*scenario.ScenarioPrompt, len(prompts))}
	for _, p := range prompts {
		store.scenarios[strings.ToLower(p.Name)] = p
	}
	return store
}

func (s *MemoryStore) GetScenario(_ context.Context, name string) (*scenario.ScenarioPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenarios[strings.ToLower(name)], nil
}

func (s *MemoryStore) GetAllScenarios(_ context.Context) ([]*scenario.ScenarioPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scenario.ScenarioPrompt, 0, len(s.scenarios))
	for _, p := range s.scenarios {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListScenarioNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.scenarios))
	for _, p := range s.scenarios {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) StoreScenario(_ context.Context, prompt *scenario.ScenarioPrompt) error {
	if prompt == nil || prompt.Name == "" {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "prompt"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[strings.ToLower(prompt.Name)] = prompt
	return nil
}

func (s *MemoryStore) DeleteScenario(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scenarios, strings.ToLower(name))
	return nil
}
