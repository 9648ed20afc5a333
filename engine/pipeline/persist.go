package pipeline

import (
	"context"
	"encoding/json"

	"github.com/scenariolab/orchestrator/engine/contextstore"
	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"golang.org/x/sync/errgroup"
)

// Context-store entry names under the stage key.
const (
	entrySystemPrompt = "system_prompt"
	entryUserPrompt   = "user_prompt"
	entryExecutionID  = "execution_id"
	entryOutputModel  = "output_model"
	entryFinishReason = "finish_reason"
	entryInputTokens  = "input_tokens"
	entryOutputTokens = "output_tokens"
	entryTotalTokens  = "total_tokens"
)

// ContextStoreMiddleware persists every completion result to the context
// store after the rest of the chain finishes. Writes for one result fan
// out concurrently; a single failed write fails the stage.
type ContextStoreMiddleware struct {
	items contextstore.ItemStore
}

func NewContextStoreMiddleware(items contextstore.ItemStore) *ContextStoreMiddleware {
	return &ContextStoreMiddleware{items: items}
}

func (m *ContextStoreMiddleware) Invoke(
	ctx context.Context,
	execCtx *StageExecutionContext,
	next func() error,
) error {
	if err := next(); err != nil {
		return err
	}
	for i, result := range execCtx.Results {
		stageKey := contextstore.StageKey(execCtx.Stage.ID, i)
		if err := m.persistResult(ctx, execCtx.SessionID, stageKey, result); err != nil {
			return err
		}
	}
	return nil
}

func (m *ContextStoreMiddleware) persistResult(
	ctx context.Context,
	sessionID, stageKey string,
	result *scenario.CompletionResult,
) error {
	g, gctx := errgroup.WithContext(ctx)
	save := func(key string, value any) {
		g.Go(func() error {
			return m.items.SaveItem(gctx, sessionID, key, value, 0)
		})
	}
	if result.SystemPrompt != "" {
		save(contextstore.InputKey(stageKey, entrySystemPrompt), result.SystemPrompt)
	}
	save(contextstore.InputKey(stageKey, entryUserPrompt), result.UserPrompt.Content)
	for key, value := range result.Metadata.Extras {
		save(contextstore.InputParamKey(stageKey, key), value)
	}
	save(contextstore.OutputKey(stageKey), result.Content)
	executionID := result.Metadata.ID
	if executionID == "" {
		executionID = stageKey
	}
	save(contextstore.OutputParamKey(stageKey, entryExecutionID), executionID)
	if result.Metadata.Model != "" {
		save(contextstore.MetadataKey(stageKey, entryOutputModel), result.Metadata.Model)
	}
	if result.Metadata.FinishReason != "" {
		save(contextstore.MetadataKey(stageKey, entryFinishReason), result.Metadata.FinishReason)
	}
	for _, audit := range result.Metadata.ToolCalls {
		payload, err := json.Marshal(audit)
		if err != nil {
			return core.NewError(err, core.ErrCodeInvalidInput, map[string]any{
				"tool": audit.FunctionName, "call_id": audit.ID,
			})
		}
		save(contextstore.ToolKey(stageKey, audit.FunctionName, audit.ID), string(payload))
	}
	if result.Metadata.InputTokens != nil {
		save(contextstore.MetadataKey(stageKey, entryInputTokens), *result.Metadata.InputTokens)
	}
	if result.Metadata.OutputTokens != nil {
		save(contextstore.MetadataKey(stageKey, entryOutputTokens), *result.Metadata.OutputTokens)
	}
	if result.Metadata.TotalTokens != nil {
		save(contextstore.MetadataKey(stageKey, entryTotalTokens), *result.Metadata.TotalTokens)
	}
	return g.Wait()
}

// NewDefaultPipeline wires the standard middleware chain: populate,
// validate, log, invoke, persist. Logging sits outside the LLM and
// persistence middlewares so its duration covers the stage's real work.
func NewDefaultPipeline(
	populate *ContextPopulationMiddleware,
	completer Completer,
	router ModelRouter,
	items contextstore.ItemStore,
) *Pipeline {
	return New(
		populate,
		NewPlaceholderValidationMiddleware(),
		NewLoggingMiddleware(),
		NewLlmRequestMiddleware(completer, router),
		NewContextStoreMiddleware(items),
	)
}
