package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 1_000
)

// Registry aggregates an ordered list of scenario stores behind a
// concurrent case-insensitive cache. Construction kicks off an async
// warm-up that loads every store; lookups await the warm-up, then consult
// the cache, then fan out across stores.
//
// The ristretto cache is best-effort (admission may decline an entry); the
// name index is authoritative for ListScenarioNames, and a declined entry
// is simply re-fetched from the stores on its next lookup.
type Registry struct {
	stores []ScenarioStore
	cache  *ristretto.Cache[string, *scenario.ScenarioPrompt]

	namesMu sync.RWMutex
	names   map[string]string // lower(name) -> canonical name

	warmupDone chan struct{}
}

// NewRegistry validates the store list and starts the warm-up. The ctx
// passed here scopes the warm-up load.
func NewRegistry(ctx context.Context, stores []ScenarioStore) (*Registry, error) {
	if len(stores) == 0 {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "stores"})
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *scenario.ScenarioPrompt]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"component": "registry cache"})
	}
	r := &Registry{
		stores:     stores,
		cache:      cache,
		names:      make(map[string]string),
		warmupDone: make(chan struct{}),
	}
	go r.warmUp(ctx)
	return r, nil
}

func (r *Registry) warmUp(ctx context.Context) {
	defer close(r.warmupDone)
	r.load(ctx)
}

// load reads all scenarios from all stores concurrently, then applies the
// results in store order so a later store wins name ties.
func (r *Registry) load(ctx context.Context) {
	log := logger.FromContext(ctx)
	perStore := make([][]*scenario.ScenarioPrompt, len(r.stores))
	g, gctx := errgroup.WithContext(ctx)
	for i, store := range r.stores {
		g.Go(func() error {
			prompts, err := store.GetAllScenarios(gctx)
			if err != nil {
				log.Warn("scenario store warm-up failed", "store_index", i, "error", core.RedactError(err))
				return nil
			}
			log.Info("scenario store warmed up", "store_index", i, "scenarios", len(prompts))
			perStore[i] = prompts
			return nil
		})
	}
	_ = g.Wait()
	// Resolve ties before touching the cache: ristretto keeps the first Set
	// of a new key, so each key is inserted once with its winning scenario.
	latest := make(map[string]*scenario.ScenarioPrompt)
	for _, prompts := range perStore {
		for _, prompt := range prompts {
			if prompt != nil && prompt.Name != "" {
				latest[strings.ToLower(prompt.Name)] = prompt
			}
		}
	}
	for _, prompt := range latest {
		r.insert(prompt)
	}
	r.cache.Wait()
}

func (r *Registry) insert(prompt *scenario.ScenarioPrompt) {
	if prompt == nil || prompt.Name == "" {
		return
	}
	key := strings.ToLower(prompt.Name)
	r.namesMu.Lock()
	r.names[key] = prompt.Name
	r.namesMu.Unlock()
	r.cache.Set(key, prompt, 1)
}

func (r *Registry) awaitWarmup(ctx context.Context) error {
	select {
	case <-r.warmupDone:
		return nil
	case <-ctx.Done():
		return core.NewError(ctx.Err(), core.ErrCodeCancelled, map[string]any{"component": "registry"})
	}
}

// GetScenario resolves name case-insensitively: cache first, then a
// parallel fan-out across every store. The last store's non-nil fan-out
// result is cached under its own name.
func (r *Registry) GetScenario(ctx context.Context, name string) (*scenario.ScenarioPrompt, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "name"})
	}
	if err := r.awaitWarmup(ctx); err != nil {
		return nil, err
	}
	key := strings.ToLower(name)
	if prompt, ok := r.cache.Get(key); ok {
		return prompt, nil
	}
	found := make([]*scenario.ScenarioPrompt, len(r.stores))
	g, gctx := errgroup.WithContext(ctx)
	for i, store := range r.stores {
		g.Go(func() error {
			prompt, err := store.GetScenario(gctx, name)
			if err != nil {
				return err
			}
			found[i] = prompt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, core.NewError(err, core.ErrCodeCancelled, map[string]any{"scenario": name})
		}
		return nil, err
	}
	// Every fan-out result shares the lookup key; cache the last store's
	// so a later store wins, as it does during warm-up.
	for i := len(found) - 1; i >= 0; i-- {
		if found[i] != nil {
			r.insert(found[i])
			break
		}
	}
	r.cache.Wait()
	if prompt, ok := r.cache.Get(key); ok {
		return prompt, nil
	}
	// Admission may have declined the entry; fall back to the fan-out
	// results directly, last store winning.
	for i := len(found) - 1; i >= 0; i-- {
		if found[i] != nil {
			return found[i], nil
		}
	}
	return nil, core.NewError(nil, core.ErrCodeNotFound, map[string]any{"scenario": name})
}

// ListScenarioNames returns every cached scenario name, sorted.
func (r *Registry) ListScenarioNames(ctx context.Context) ([]string, error) {
	if err := r.awaitWarmup(ctx); err != nil {
		return nil, err
	}
	r.namesMu.RLock()
	defer r.namesMu.RUnlock()
	names := make([]string, 0, len(r.names))
	for _, canonical := range r.names {
		names = append(names, canonical)
	}
	sort.Strings(names)
	return names, nil
}

// Refresh re-runs the store load synchronously, picking up definitions
// added to the stores since construction.
func (r *Registry) Refresh(ctx context.Context) error {
	if err := r.awaitWarmup(ctx); err != nil {
		return err
	}
	r.load(ctx)
	return nil
}

// Close releases the cache.
func (r *Registry) Close() {
	r.cache.Close()
}
