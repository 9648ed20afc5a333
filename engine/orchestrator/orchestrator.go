package orchestrator

import (
	"context"

	"github.com/scenariolab/orchestrator/engine/contextstore"
	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/pipeline"
	"github.com/scenariolab/orchestrator/engine/placeholder"
	"github.com/scenariolab/orchestrator/engine/registry"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

// Orchestrator is the entry point: it resolves scenarios through the
// registry and walks each stage through the middleware pipeline,
// accumulating per-stage completion results. Stages run sequentially
// within one session; distinct sessions may run concurrently against a
// shared Orchestrator.
type Orchestrator struct {
	registry  *registry.Registry
	completer pipeline.Completer
	router    pipeline.ModelRouter
	items     contextstore.ItemStore
	resolver  *placeholder.Resolver
}

// Config wires the orchestrator's collaborators. Router is optional; all
// other fields are required.
type Config struct {
	Registry  *registry.Registry
	Completer pipeline.Completer
	Router    pipeline.ModelRouter
	Items     contextstore.ItemStore
}

func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Registry == nil || cfg.Completer == nil || cfg.Items == nil {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"component": "orchestrator"})
	}
	return &Orchestrator{
		registry:  cfg.Registry,
		completer: cfg.Completer,
		router:    cfg.Router,
		items:     cfg.Items,
		resolver:  placeholder.NewResolver(cfg.Items),
	}, nil
}

// ExecuteScenario runs every stage of the named scenario in declared
// order, returning one result list per stage. A later stage's placeholders
// may reference earlier stages' persisted outputs.
func (o *Orchestrator) ExecuteScenario(
	ctx context.Context,
	sessionID, scenarioName string,
) ([][]*scenario.CompletionResult, error) {
	if sessionID == "" || scenarioName == "" {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{
			"session_id": sessionID, "scenario": scenarioName,
		})
	}
	prompt, err := o.registry.GetScenario(ctx, scenarioName)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Info("scenario started", "session_id", sessionID, "scenario", prompt.Name, "stages", len(prompt.Stages))
	metadata := make(map[string]any)
	results := make([][]*scenario.CompletionResult, 0, len(prompt.Stages))
	for i := range prompt.Stages {
		stageResults, err := o.runStage(ctx, sessionID, prompt.Name, &prompt.Stages[i], metadata)
		if err != nil {
			return nil, core.NewError(err, mustCode(err), map[string]any{
				"session_id": sessionID,
				"scenario":   prompt.Name,
				"stage":      prompt.Stages[i].Name,
			})
		}
		results = append(results, stageResults)
	}
	log.Info("scenario finished", "session_id", sessionID, "scenario", prompt.Name)
	return results, nil
}

// ExecuteStage runs a single stage of the named scenario with a fresh
// metadata map.
func (o *Orchestrator) ExecuteStage(
	ctx context.Context,
	sessionID, scenarioName string,
	stageID int,
) ([]*scenario.CompletionResult, error) {
	if sessionID == "" || scenarioName == "" {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{
			"session_id": sessionID, "scenario": scenarioName,
		})
	}
	prompt, err := o.registry.GetScenario(ctx, scenarioName)
	if err != nil {
		return nil, err
	}
	stage, ok := prompt.StageByID(stageID)
	if !ok {
		return nil, core.NewError(nil, core.ErrCodeNotFound, map[string]any{
			"scenario": prompt.Name, "stage_id": stageID,
		})
	}
	return o.runStage(ctx, sessionID, prompt.Name, stage, make(map[string]any))
}

func (o *Orchestrator) runStage(
	ctx context.Context,
	sessionID, scenarioName string,
	stage *scenario.RuntimeStage,
	metadata map[string]any,
) ([]*scenario.CompletionResult, error) {
	execCtx := pipeline.NewStageExecutionContext(sessionID, scenarioName, stage, metadata)
	chain := pipeline.NewDefaultPipeline(
		pipeline.NewContextPopulationMiddleware(o.resolver),
		o.completer,
		o.router,
		o.items,
	)
	if err := chain.Run(ctx, execCtx); err != nil {
		return nil, err
	}
	return execCtx.Results, nil
}

// mustCode preserves the failing error's kind when the orchestrator wraps
// it with stage context.
func mustCode(err error) string {
	if code, ok := core.CodeOf(err); ok {
		return code
	}
	return core.ErrCodeProviderError
}
