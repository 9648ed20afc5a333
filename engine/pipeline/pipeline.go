package pipeline

import (
	"context"

	"github.com/scenariolab/orchestrator/engine/scenario"
)

// StageExecutionContext is the shared, mutable state one stage's pipeline
// run operates on. The orchestrator owns it exclusively while the stage
// runs; middlewares receive a handle and must not retain it past their
// next() completion.
type StageExecutionContext struct {
	SessionID string
	Scenario  string
	// Stage is the pipeline's private copy: the populate middleware
	// rewrites its user-turn contents in place.
	Stage    *scenario.RuntimeStage
	Metadata map[string]any
	Results  []*scenario.CompletionResult
}

// NewStageExecutionContext deep-copies the stage's turns so population
// never mutates the cached runtime scenario.
func NewStageExecutionContext(
	sessionID, scenarioName string,
	stage *scenario.RuntimeStage,
	metadata map[string]any,
) *StageExecutionContext {
	copied := *stage
	copied.Turns = append([]scenario.PromptTurn(nil), stage.Turns...)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &StageExecutionContext{
		SessionID: sessionID,
		Scenario:  scenarioName,
		Stage:     &copied,
		Metadata:  metadata,
	}
}

// Middleware is one composable unit in the stage-execution chain. It may
// run code before and/or after next(); returning without calling next()
// short-circuits the rest of the chain.
type Middleware interface {
	Invoke(ctx context.Context, execCtx *StageExecutionContext, next func() error) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, execCtx *StageExecutionContext, next func() error) error

func (f MiddlewareFunc) Invoke(ctx context.Context, execCtx *StageExecutionContext, next func() error) error {
	return f(ctx, execCtx, next)
}

// Pipeline composes middlewares as a Russian-doll chain: middleware i's
// next() runs middleware i+1, and the innermost next() is a no-op. Any
// failure propagates up unchanged; the pipeline never recovers.
type Pipeline struct {
	middlewares []Middleware
}

func New(middlewares ...Middleware) *Pipeline {
	return &Pipeline{middlewares: middlewares}
}

func (p *Pipeline) Run(ctx context.Context, execCtx *StageExecutionContext) error {
	var invoke func(i int) error
	invoke = func(i int) error {
		if i >= len(p.middlewares) {
			return nil
		}
		return p.middlewares[i].Invoke(ctx, execCtx, func() error {
			return invoke(i + 1)
		})
	}
	return invoke(0)
}
