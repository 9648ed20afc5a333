package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scenariolab/orchestrator/engine/core"
)

// saveTurnScript prepends a turn and resets the key's TTL atomically:
// either both the LPUSH and the EXPIRE land, or neither does.
const saveTurnScript = `
local key = KEYS[1]
redis.call('LPUSH', key, ARGV[1])
redis.call('EXPIRE', key, ARGV[2])
return 1
`

var _ Store = (*RedisStore)(nil)

// RedisStore is a Store backed by Redis, suitable for multi-process
// deployments that share session state across orchestrator instances.
type RedisStore struct {
	client redis.Cmdable
	opts   Options
}

func NewRedisStore(client redis.Cmdable, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) turnsKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:turns", s.opts.KeyPrefix, sessionID)
}

func (s *RedisStore) itemKey(sessionID, key string) string {
	return fmt.Sprintf("%s:%s:item:%s", s.opts.KeyPrefix, sessionID, key)
}

func (s *RedisStore) SaveTurn(ctx context.Context, sessionID string, turn Turn, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = s.opts.DefaultTTL
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"session_id": sessionID})
	}
	key := s.turnsKey(sessionID)
	if err := s.client.Eval(ctx, saveTurnScript, []string{key}, string(payload), int(ttl.Seconds())).Err(); err != nil {
		return core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"session_id": sessionID})
	}
	return nil
}

func (s *RedisStore) LoadTurns(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if err := validateMaxTurns(maxTurns); err != nil {
		return nil, err
	}
	key := s.turnsKey(sessionID)
	length, err := s.client.LLen(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"session_id": sessionID})
	}
	if length > int64(maxTurns) {
		// Side-effect trim: the stored list exceeds the requested window.
		if err := s.client.LTrim(ctx, key, 0, int64(maxTurns)-1).Err(); err != nil {
			return nil, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"session_id": sessionID})
		}
	}
	raw, err := s.client.LRange(ctx, key, 0, int64(maxTurns)-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Turn{}, nil
		}
		return nil, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"session_id": sessionID})
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) SaveItem(ctx context.Context, sessionID, key string, value any, ttl time.Duration) error {
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
	if err := s.client.Set(ctx, s.itemKey(sessionID, key), raw, ttl).Err(); err != nil {
		return core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"key": key})
	}
	return nil
}

func (s *RedisStore) LoadItem(ctx context.Context, sessionID, key string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, s.itemKey(sessionID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"key": key})
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"key": key})
	}
	return true, nil
}

func (s *RedisStore) LoadRaw(ctx context.Context, sessionID, key string) (json.RawMessage, bool, error) {
	raw, err := s.client.Get(ctx, s.itemKey(sessionID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, core.NewError(err, core.ErrCodeStorageUnavailable, map[string]any{"key": key})
	}
	return json.RawMessage(raw), true, nil
}
