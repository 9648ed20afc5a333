package llmadapter

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/engine/schema"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

// Conversation loop states.
const (
	stateInit             = "init"
	stateAwaitLLM         = "await_llm"
	stateEvaluateResponse = "evaluate_response"
	stateProcessTools     = "process_tools"
	stateHandleCompletion = "handle_completion"
	stateFinalize         = "finalize"
	stateTerminateError   = "terminate_error"
)

// Conversation loop events.
const (
	eventStartLoop         = "start_loop"
	eventLLMResponse       = "llm_response"
	eventResponseNoTool    = "response_no_tool"
	eventResponseWithTools = "response_with_tools"
	eventToolsExecuted     = "tools_executed"
	eventCompletionSuccess = "completion_success"
	eventFailure           = "failure"
)

func loopFSMEvents() fsm.Events {
	return fsm.Events{
		{Name: eventStartLoop, Src: []string{stateInit}, Dst: stateAwaitLLM},
		{Name: eventLLMResponse, Src: []string{stateAwaitLLM}, Dst: stateEvaluateResponse},
		{Name: eventResponseNoTool, Src: []string{stateEvaluateResponse}, Dst: stateHandleCompletion},
		{Name: eventResponseWithTools, Src: []string{stateEvaluateResponse}, Dst: stateProcessTools},
		{Name: eventToolsExecuted, Src: []string{stateProcessTools}, Dst: stateAwaitLLM},
		{Name: eventCompletionSuccess, Src: []string{stateHandleCompletion}, Dst: stateFinalize},
		{
			Name: eventFailure,
			Src: []string{
				stateAwaitLLM,
				stateEvaluateResponse,
				stateProcessTools,
				stateHandleCompletion,
			},
			Dst: stateTerminateError,
		},
	}
}

// loopContext accumulates the conversation across tool-call rounds.
type loopContext struct {
	request   *LLMRequest
	response  *LLMResponse
	audits    []scenario.ToolCallAudit
	rounds    int
	maxRounds int
	err       error
}

// conversationLoop drives provider/tool turns until the model produces a
// terminal response. The machine enforces the legal transitions; the step
// functions do the work.
type conversationLoop struct {
	client   LLMClient
	invoker  *invoker
	executor *toolExecutor
}

func newConversationLoop(client LLMClient, inv *invoker, executor *toolExecutor) *conversationLoop {
	return &conversationLoop{client: client, invoker: inv, executor: executor}
}

func (l *conversationLoop) Run(ctx context.Context, req *LLMRequest, maxRounds int) (*LLMResponse, []scenario.ToolCallAudit, error) {
	loopCtx := &loopContext{request: req, maxRounds: maxRounds}
	if err := ctx.Err(); err != nil {
		return nil, nil, core.NewError(err, core.ErrCodeCancelled, map[string]any{"model": req.Model})
	}
	machine := fsm.NewFSM(stateInit, loopFSMEvents(), fsm.Callbacks{})
	if err := machine.Event(ctx, eventStartLoop); err != nil {
		return nil, nil, core.NewError(err, core.ErrCodeProviderError, map[string]any{"state": machine.Current()})
	}
	for {
		switch machine.Current() {
		case stateAwaitLLM:
			l.step(ctx, machine, loopCtx, l.awaitLLM)
		case stateEvaluateResponse:
			l.step(ctx, machine, loopCtx, l.evaluateResponse)
		case stateProcessTools:
			l.step(ctx, machine, loopCtx, l.processTools)
		case stateHandleCompletion:
			l.step(ctx, machine, loopCtx, l.handleCompletion)
		case stateFinalize:
			return loopCtx.response, loopCtx.audits, nil
		case stateTerminateError:
			return nil, nil, loopCtx.err
		}
	}
}

func (l *conversationLoop) step(
	ctx context.Context,
	machine *fsm.FSM,
	loopCtx *loopContext,
	fn func(context.Context, *loopContext) (string, error),
) {
	event, err := fn(ctx, loopCtx)
	if err != nil {
		loopCtx.err = err
		event = eventFailure
	}
	if transitionErr := machine.Event(ctx, event); transitionErr != nil {
		if loopCtx.err == nil {
			loopCtx.err = core.NewError(transitionErr, core.ErrCodeProviderError, map[string]any{
				"state": machine.Current(), "event": event,
			})
		}
		// Force the terminal state; an illegal transition means the loop is
		// already broken.
		machine.SetState(stateTerminateError)
	}
}

func (l *conversationLoop) awaitLLM(ctx context.Context, loopCtx *loopContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.NewError(err, core.ErrCodeCancelled, map[string]any{"model": loopCtx.request.Model})
	}
	response, err := l.invoker.Invoke(ctx, l.client, loopCtx.request)
	if err != nil {
		return "", err
	}
	loopCtx.response = response
	return eventLLMResponse, nil
}

func (l *conversationLoop) evaluateResponse(_ context.Context, loopCtx *loopContext) (string, error) {
	if len(loopCtx.response.ToolCalls) == 0 {
		return eventResponseNoTool, nil
	}
	if loopCtx.rounds >= loopCtx.maxRounds {
		return "", core.NewError(nil, core.ErrCodeProviderError, map[string]any{
			"reason":     "tool-call rounds exhausted",
			"max_rounds": loopCtx.maxRounds,
		})
	}
	return eventResponseWithTools, nil
}

func (l *conversationLoop) processTools(ctx context.Context, loopCtx *loopContext) (string, error) {
	calls := loopCtx.response.ToolCalls
	audits, err := l.executor.Execute(ctx, calls)
	if err != nil {
		return "", err
	}
	loopCtx.audits = append(loopCtx.audits, audits...)
	loopCtx.request.Messages = append(loopCtx.request.Messages, Message{
		Role:      RoleAssistant,
		Content:   loopCtx.response.Content,
		ToolCalls: calls,
	})
	// Tool messages answer in audit order; with parallel execution that is
	// completion order rather than issue order.
	for _, audit := range audits {
		loopCtx.request.Messages = append(loopCtx.request.Messages, Message{
			Role:       RoleTool,
			Content:    audit.Result,
			ToolCallID: audit.ID,
			Name:       audit.FunctionName,
		})
	}
	loopCtx.rounds++
	return eventToolsExecuted, nil
}

func (l *conversationLoop) handleCompletion(ctx context.Context, loopCtx *loopContext) (string, error) {
	if literal := loopCtx.request.Options.ResponseSchema; literal != "" {
		l.validateStructuredOutput(ctx, literal, loopCtx.response.Content)
	}
	return eventCompletionSuccess, nil
}

// validateStructuredOutput checks the terminal content against the declared
// schema. A mismatch is logged, not fatal: the result still flows to the
// caller, which owns the retry decision.
func (l *conversationLoop) validateStructuredOutput(ctx context.Context, literal, content string) {
	compiled, err := schema.CompileString(literal)
	if err != nil {
		logger.FromContext(ctx).Warn("response schema does not compile", "error", core.RedactError(err))
		return
	}
	var value any
	if err := jsonUnmarshal(content, &value); err != nil {
		logger.FromContext(ctx).Warn("structured output is not valid JSON")
		return
	}
	if result := compiled.Validate(value); !result.Valid {
		logger.FromContext(ctx).Warn("structured output does not match schema", "errors", len(result.Errors))
	}
}
