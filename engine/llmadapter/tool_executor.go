package llmadapter

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/engine/toolregistry"
	"github.com/scenariolab/orchestrator/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// toolExecutor runs the function calls from one model response against the
// function registry and records an audit entry per call.
type toolExecutor struct {
	registry    *toolregistry.Registry
	parallel    bool
	concurrency int
}

func newToolExecutor(registry *toolregistry.Registry, cfg *Config) *toolExecutor {
	return &toolExecutor{
		registry:    registry,
		parallel:    cfg.AllowParallelToolCalls,
		concurrency: cfg.toolConcurrency(),
	}
}

// Execute runs every call and returns the audits in completion order when
// parallel execution is enabled, response order otherwise. An unregistered
// function fails the whole round with ToolMissing.
func (e *toolExecutor) Execute(ctx context.Context, calls []ToolCall) ([]scenario.ToolCallAudit, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	log.Debug("executing tool calls", "count", len(calls), "parallel", e.parallel)
	if !e.parallel {
		audits := make([]scenario.ToolCallAudit, 0, len(calls))
		for _, call := range calls {
			audit, err := e.executeSingle(ctx, call)
			if err != nil {
				return nil, err
			}
			audits = append(audits, *audit)
		}
		return audits, nil
	}
	var (
		mu     sync.Mutex
		audits = make([]scenario.ToolCallAudit, 0, len(calls))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, call := range calls {
		g.Go(func() error {
			audit, err := e.executeSingle(gctx, call)
			if err != nil {
				return err
			}
			mu.Lock()
			audits = append(audits, *audit)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return audits, nil
}

func (e *toolExecutor) executeSingle(ctx context.Context, call ToolCall) (*scenario.ToolCallAudit, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewError(err, core.ErrCodeCancelled, map[string]any{"tool": call.Name})
	}
	fn, ok := e.registry.TryGet(call.Name)
	if !ok {
		return nil, core.NewError(nil, core.ErrCodeToolMissing, map[string]any{
			"tool": call.Name, "call_id": call.ID,
		})
	}
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{
			"tool": call.Name, "call_id": call.ID, "reason": "arguments are not valid JSON",
		})
	}
	result, err := fn(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewError(err, core.ErrCodeCancelled, map[string]any{"tool": call.Name})
		}
		return nil, core.NewError(err, core.ErrCodeProviderError, map[string]any{
			"tool": call.Name, "call_id": call.ID,
		})
	}
	id := call.ID
	if id == "" {
		id = core.NewID()
	}
	return &scenario.ToolCallAudit{
		ID:           id,
		FunctionName: call.Name,
		Arguments:    args,
		Result:       result,
	}, nil
}
