package contextstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/scenariolab/orchestrator/engine/core"
)

// Turn is one message in a session's sliding-window conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnStore is the bounded conversation-history facade.
type TurnStore interface {
	// SaveTurn prepends turn to the session's list and resets the key's TTL.
	// ttl of zero uses the store's configured default. A negative ttl fails
	// with ErrCodeInvalidInput.
	SaveTurn(ctx context.Context, sessionID string, turn Turn, ttl time.Duration) error
	// LoadTurns returns the newest maxTurns entries, index 0 newest. A
	// missing or expired session returns an empty slice, never an error.
	// maxTurns must be strictly positive; zero or negative fails with
	// ErrCodeInvalidInput (callers that want the store's configured default
	// window resolve it before calling, e.g. via WithDefaultMaxTurns).
	LoadTurns(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error)
}

// ItemStore is the general-purpose session KV facade used by the pipeline.
type ItemStore interface {
	// SaveItem JSON-encodes value and stores it under (sessionID, key).
	SaveItem(ctx context.Context, sessionID, key string, value any, ttl time.Duration) error
	// LoadItem decodes the stored value into dest and reports whether the key
	// was present. A missing key returns (false, nil), never an error.
	LoadItem(ctx context.Context, sessionID, key string, dest any) (bool, error)
	// LoadRaw returns the stored value's undecoded JSON bytes, for callers
	// (the placeholder resolver) that need the value's "string form" rather
	// than a typed decode. A missing key returns (nil, false, nil).
	LoadRaw(ctx context.Context, sessionID, key string) (json.RawMessage, bool, error)
}

// Store is the full context-store contract. Some deployments back both
// facades with the same underlying storage; others split them.
type Store interface {
	TurnStore
	ItemStore
}

// Options configures a Store implementation.
type Options struct {
	// KeyPrefix namespaces every key this store writes, non-empty.
	KeyPrefix string `validate:"required"`
	// DefaultTTL is used by SaveTurn/SaveItem when the caller passes zero.
	DefaultTTL time.Duration `validate:"gt=0"`
	// DefaultMaxTurns is the window callers resolve through
	// WithDefaultMaxTurns before calling LoadTurns.
	DefaultMaxTurns int `validate:"gt=0"`
}

var optionsValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration surface; store constructors expect
// validated options.
func (o *Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"component": "contextstore"})
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "ttl", "value": ttl})
	}
	return nil
}

func validateMaxTurns(maxTurns int) error {
	if maxTurns <= 0 {
		return core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "maxTurns", "value": maxTurns})
	}
	return nil
}

// WithDefaultMaxTurns resolves maxTurns against a store's configured
// default when the caller passes zero. LoadTurns itself rejects zero, so
// callers that want the configured window resolve it here first.
func WithDefaultMaxTurns(maxTurns, defaultMaxTurns int) int {
	if maxTurns == 0 {
		return defaultMaxTurns
	}
	return maxTurns
}
