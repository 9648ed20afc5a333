package pipeline

import (
	"context"
	"time"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/placeholder"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

// Completer is the LLM adapter surface the pipeline drives.
type Completer interface {
	CompleteAsync(ctx context.Context, model string, prompt *scenario.CompletionPrompt) (*scenario.CompletionResult, error)
}

// ModelRouter picks the model for one completion prompt. With no router, or
// when Route returns an empty name, the stage's resolved model is used.
type ModelRouter interface {
	Route(ctx context.Context, prompt *scenario.CompletionPrompt) (string, error)
}

// ContextPopulationMiddleware rewrites each user turn's content with its
// placeholder-resolved form before the rest of the chain runs.
type ContextPopulationMiddleware struct {
	resolver *placeholder.Resolver
}

func NewContextPopulationMiddleware(resolver *placeholder.Resolver) *ContextPopulationMiddleware {
	return &ContextPopulationMiddleware{resolver: resolver}
}

func (m *ContextPopulationMiddleware) Invoke(
	ctx context.Context,
	execCtx *StageExecutionContext,
	next func() error,
) error {
	stageParams := execCtx.Stage.Parameters.Extras
	for i := range execCtx.Stage.Turns {
		turn := &execCtx.Stage.Turns[i]
		if turn.Role != scenario.RoleUser {
			continue
		}
		params := mergeParams(stageParams, turn.Parameters.Extras)
		resolved, err := m.resolver.ResolveContent(ctx, execCtx.SessionID, turn.Content, params)
		if err != nil {
			return err
		}
		turn.Content = resolved
	}
	return next()
}

// mergeParams layers turn parameters over stage parameters.
func mergeParams(stage, turn map[string]any) map[string]any {
	merged := make(map[string]any, len(stage)+len(turn))
	for k, v := range stage {
		merged[k] = v
	}
	for k, v := range turn {
		merged[k] = v
	}
	return merged
}

// PlaceholderValidationMiddleware asserts that population left no marker of
// either syntax in any user turn.
type PlaceholderValidationMiddleware struct{}

func NewPlaceholderValidationMiddleware() *PlaceholderValidationMiddleware {
	return &PlaceholderValidationMiddleware{}
}

func (m *PlaceholderValidationMiddleware) Invoke(
	_ context.Context,
	execCtx *StageExecutionContext,
	next func() error,
) error {
	for _, turn := range execCtx.Stage.Turns {
		if turn.Role != scenario.RoleUser {
			continue
		}
		if placeholder.HasMarkers(turn.Content) {
			return core.NewError(nil, core.ErrCodeUnresolvedPlaceholder, map[string]any{
				"session_id": execCtx.SessionID,
				"stage_id":   execCtx.Stage.ID,
				"turn":       turn.Name,
				"markers":    placeholder.Markers(turn.Content),
			})
		}
	}
	return next()
}

// LoggingMiddleware brackets the rest of the chain with stage start/finish
// lines and a duration measurement.
type LoggingMiddleware struct{}

func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

func (m *LoggingMiddleware) Invoke(
	ctx context.Context,
	execCtx *StageExecutionContext,
	next func() error,
) error {
	log := logger.FromContext(ctx).With(
		"session_id", execCtx.SessionID,
		"scenario", execCtx.Scenario,
		"stage_id", execCtx.Stage.ID,
	)
	log.Info("stage started", "stage", execCtx.Stage.Name)
	start := time.Now()
	err := next()
	duration := time.Since(start)
	if err != nil {
		log.Error("stage failed", "duration", duration, "error", core.RedactError(err))
		return err
	}
	log.Info("stage finished", "duration", duration, "results", len(execCtx.Results))
	return nil
}

// LlmRequestMiddleware expands the stage into completion prompts and runs
// each through the adapter, serially and in order: downstream turns may
// depend on state the earlier ones produced.
type LlmRequestMiddleware struct {
	completer Completer
	router    ModelRouter
}

func NewLlmRequestMiddleware(completer Completer, router ModelRouter) *LlmRequestMiddleware {
	return &LlmRequestMiddleware{completer: completer, router: router}
}

func (m *LlmRequestMiddleware) Invoke(
	ctx context.Context,
	execCtx *StageExecutionContext,
	next func() error,
) error {
	prompts := execCtx.Stage.ToCompletionPrompts(execCtx.SessionID, execCtx.Metadata)
	for i := range prompts {
		if err := ctx.Err(); err != nil {
			return core.NewError(err, core.ErrCodeCancelled, map[string]any{
				"session_id": execCtx.SessionID, "stage_id": execCtx.Stage.ID,
			})
		}
		prompt := &prompts[i]
		model := execCtx.Stage.Model
		if m.router != nil {
			routed, err := m.router.Route(ctx, prompt)
			if err != nil {
				return err
			}
			if routed != "" {
				model = routed
			}
		}
		result, err := m.completer.CompleteAsync(ctx, model, prompt)
		if err != nil {
			return err
		}
		execCtx.Results = append(execCtx.Results, result)
	}
	return next()
}
