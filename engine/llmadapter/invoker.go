package llmadapter

import (
	"context"
	"time"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/sethvargo/go-retry"
)

const (
	retryBackoffBase = 250 * time.Millisecond
	retryBackoffMax  = 10 * time.Second
)

// invoker wraps provider calls with bounded exponential-backoff retries.
// Only provider-transport errors retry; application errors such as
// ToolMissing or Cancelled surface on first occurrence.
type invoker struct {
	attempts int
}

func newInvoker(cfg *Config) *invoker {
	return &invoker{attempts: cfg.retryAttempts()}
}

func (i *invoker) Invoke(ctx context.Context, client LLMClient, req *LLMRequest) (*LLMResponse, error) {
	backoff := retry.WithMaxRetries(
		uint64(i.attempts),
		retry.WithMaxDuration(retryBackoffMax, retry.NewExponential(retryBackoffBase)),
	)
	var response *LLMResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		response, callErr = client.GenerateContent(ctx, req)
		if callErr != nil {
			if isRetryable(ctx, callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewError(err, core.ErrCodeCancelled, map[string]any{"model": req.Model})
		}
		if _, coded := core.CodeOf(err); coded {
			return nil, err
		}
		return nil, core.NewError(err, core.ErrCodeProviderError, map[string]any{"model": req.Model})
	}
	return response, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	code, ok := core.CodeOf(err)
	if !ok {
		// Uncoded errors come straight from the transport.
		return true
	}
	return code == core.ErrCodeProviderError
}
