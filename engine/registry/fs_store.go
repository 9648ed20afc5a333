package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

var scenarioExtensions = map[string]struct{}{
	".json": {},
	".yaml": {},
	".yml":  {},
}

var _ ScenarioStore = (*FilesystemStore)(nil)

// FilesystemStore loads scenario definitions from every .json/.yaml/.yml
// file in a directory, lowering them through the builder on read. Scenarios
// stored at runtime live in an in-memory overlay layered over the files;
// the overlay wins on name collision.
type FilesystemStore struct {
	dir     string
	builder *scenario.Builder

	mu      sync.RWMutex
	overlay map[string]*scenario.ScenarioPrompt
	deleted map[string]struct{}
}

func NewFilesystemStore(dir string, builder *scenario.Builder) *FilesystemStore {
	if builder == nil {
		builder = scenario.NewBuilder(nil)
	}
	return &FilesystemStore{
		dir:     dir,
		builder: builder,
		overlay: make(map[string]*scenario.ScenarioPrompt),
		deleted: make(map[string]struct{}),
	}
}

func (s *FilesystemStore) GetScenario(ctx context.Context, name string) (*scenario.ScenarioPrompt, error) {
	all, err := s.GetAllScenarios(ctx)
	if err != nil {
		return nil, err
	}
	for _, prompt := range all {
		if strings.EqualFold(prompt.Name, name) {
			return prompt, nil
		}
	}
	return nil, nil
}

// GetAllScenarios loads every parseable scenario file plus the overlay.
// A file that fails to load or build is logged and skipped so one bad
// definition does not hide the rest.
func (s *FilesystemStore) GetAllScenarios(ctx context.Context) ([]*scenario.ScenarioPrompt, error) {
	log := logger.FromContext(ctx)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s.overlayScenarios(nil), nil
		}
		return nil, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"dir": s.dir})
	}
	byName := make(map[string]*scenario.ScenarioPrompt)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := scenarioExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		def, err := scenario.LoadFile(path)
		if err != nil {
			log.Warn("skipping unloadable scenario file", "path", path, "error", core.RedactError(err))
			continue
		}
		prompt, err := s.builder.Build(ctx, def)
		if err != nil {
			log.Warn("skipping invalid scenario definition", "path", path, "error", core.RedactError(err))
			continue
		}
		log.Info("loaded scenario", "path", path, "scenario", prompt.Name)
		byName[strings.ToLower(prompt.Name)] = prompt
	}
	s.mu.RLock()
	for name := range s.deleted {
		delete(byName, name)
	}
	s.mu.RUnlock()
	prompts := make([]*scenario.ScenarioPrompt, 0, len(byName))
	for _, prompt := range byName {
		prompts = append(prompts, prompt)
	}
	return s.overlayScenarios(prompts), nil
}

func (s *FilesystemStore) ListScenarioNames(ctx context.Context) ([]string, error) {
	all, err := s.GetAllScenarios(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, prompt := range all {
		names = append(names, prompt.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FilesystemStore) StoreScenario(_ context.Context, prompt *scenario.ScenarioPrompt) error {
	if prompt == nil || prompt.Name == "" {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "prompt"})
	}
	key := strings.ToLower(prompt.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay[key] = prompt
	delete(s.deleted, key)
	return nil
}

func (s *FilesystemStore) DeleteScenario(_ context.Context, name string) error {
	key := strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlay, key)
	s.deleted[key] = struct{}{}
	return nil
}

func (s *FilesystemStore) overlayScenarios(base []*scenario.ScenarioPrompt) []*scenario.ScenarioPrompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byName := make(map[string]*scenario.ScenarioPrompt, len(base)+len(s.overlay))
	for _, prompt := range base {
		byName[strings.ToLower(prompt.Name)] = prompt
	}
	for name, prompt := range s.overlay {
		byName[name] = prompt
	}
	out := make([]*scenario.ScenarioPrompt, 0, len(byName))
	for _, prompt := range byName {
		out = append(out, prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
