package contextstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/scenariolab/orchestrator/engine/core"
)

type memoryBucket struct {
	turns      []Turn
	turnsExp   time.Time
	items      map[string]json.RawMessage
	itemExpiry map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store, suitable for tests and single-process
// deployments that don't need cross-process session sharing. It satisfies
// the same atomicity and TTL contract as a Redis-backed Store.
type MemoryStore struct {
	opts    Options
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts,
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}
}

// WithClock overrides the store's time source, for deterministic tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) bucket(sessionID string) *memoryBucket {
	b, ok := s.buckets[sessionID]
	if !ok {
		b = &memoryBucket{items: make(map[string]json.RawMessage), itemExpiry: make(map[string]time.Time)}
		s.buckets[sessionID] = b
	}
	return b
}

func (s *MemoryStore) SaveTurn(_ context.Context, sessionID string, turn Turn, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = s.opts.DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(sessionID)
	if !b.turnsExp.IsZero() && s.now().After(b.turnsExp) {
		b.turns = nil
	}
	b.turns = append([]Turn{turn}, b.turns...)
	b.turnsExp = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) LoadTurns(_ context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if err := validateMaxTurns(maxTurns); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[sessionID]
	if !ok || (!b.turnsExp.IsZero() && s.now().After(b.turnsExp)) {
		return []Turn{}, nil
	}
	if len(b.turns) > maxTurns {
		b.turns = b.turns[:maxTurns]
	}
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out, nil
}

func (s *MemoryStore) SaveItem(_ context.Context, sessionID, key string, value any, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = s.opts.DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"key": key})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(sessionID)
	b.items[key] = raw
	b.itemExpiry[key] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) LoadItem(_ context.Context, sessionID, key string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[sessionID]
	if !ok {
		return false, nil
	}
	raw, ok := b.items[key]
	if !ok {
		return false, nil
	}
	if exp, ok := b.itemExpiry[key]; ok && s.now().After(exp) {
		delete(b.items, key)
		delete(b.itemExpiry, key)
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"key": key})
	}
	return true, nil
}

func (s *MemoryStore) LoadRaw(_ context.Context, sessionID, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[sessionID]
	if !ok {
		return nil, false, nil
	}
	raw, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	if exp, ok := b.itemExpiry[key]; ok && s.now().After(exp) {
		delete(b.items, key)
		delete(b.itemExpiry, key)
		return nil, false, nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, true, nil
}
