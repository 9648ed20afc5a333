package llmadapter

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/scenariolab/orchestrator/engine/core"
)

// Request option defaults applied when a turn does not set its own knobs.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
)

const (
	defaultRetryAttempts   = 5
	defaultMaxToolRounds   = 16
	defaultToolConcurrency = 4
)

// Config is the adapter's configuration surface. One client is opened per
// supported model.
type Config struct {
	APIKey          string   `validate:"required"`
	BaseURL         string   `validate:"omitempty,url"`
	SupportedModels []string `validate:"min=1"`
	OrganizationID  string
	ProjectID       string
	TimeoutSeconds  int `validate:"gt=0"`
	// AllowParallelToolCalls lets tool calls from one response execute
	// concurrently; otherwise they run serially in response order.
	AllowParallelToolCalls bool
	// MaxToolConcurrency bounds parallel tool execution. Zero means the
	// default.
	MaxToolConcurrency int `validate:"gte=0"`
	// RetryAttempts bounds provider-transport retries, capped at 5.
	RetryAttempts int `validate:"gte=0,lte=5"`
	// MaxToolRounds bounds consecutive tool-call rounds in one conversation;
	// exhausting it fails with ProviderError. Zero means the default.
	MaxToolRounds int `validate:"gte=0"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. It does not modify c; zero-valued
// optional fields resolve to their defaults when the adapter reads them.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{"component": "llmadapter"})
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) retryAttempts() int {
	if c.RetryAttempts <= 0 || c.RetryAttempts > 5 {
		return defaultRetryAttempts
	}
	return c.RetryAttempts
}

func (c *Config) maxToolRounds() int {
	if c.MaxToolRounds <= 0 {
		return defaultMaxToolRounds
	}
	return c.MaxToolRounds
}

func (c *Config) toolConcurrency() int {
	if c.MaxToolConcurrency <= 0 {
		return defaultToolConcurrency
	}
	return c.MaxToolConcurrency
}
