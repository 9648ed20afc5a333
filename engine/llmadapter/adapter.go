package llmadapter

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/scenario"
	"github.com/scenariolab/orchestrator/engine/toolregistry"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

// ClientFactory opens one provider client for a model.
type ClientFactory func(cfg *Config, model string) (LLMClient, error)

// Adapter is the provider-facing conversation driver: it owns one client
// per supported model, builds request options from turn parameters, runs
// the tool-calling loop, and emits completion results with a full audit of
// tool calls and token usage.
type Adapter struct {
	cfg      Config
	clients  map[string]LLMClient
	invoker  *invoker
	executor *toolExecutor
}

// NewAdapter validates cfg and opens a client for every supported model via
// factory (nil means the langchaingo OpenAI-compatible client).
func NewAdapter(cfg *Config, registry *toolregistry.Registry, factory ClientFactory) (*Adapter, error) {
	if cfg == nil {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "cfg"})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = toolregistry.New()
	}
	if factory == nil {
		factory = func(cfg *Config, model string) (LLMClient, error) {
			return NewLangChainClient(cfg, model)
		}
	}
	clients := make(map[string]LLMClient, len(cfg.SupportedModels))
	for _, model := range cfg.SupportedModels {
		client, err := factory(cfg, model)
		if err != nil {
			for _, open := range clients {
				_ = open.Close()
			}
			return nil, err
		}
		clients[model] = client
	}
	return &Adapter{
		cfg:      *cfg,
		clients:  clients,
		invoker:  newInvoker(cfg),
		executor: newToolExecutor(registry, cfg),
	}, nil
}

// SupportedModels returns the models this adapter owns clients for, sorted.
func (a *Adapter) SupportedModels() []string {
	models := make([]string, 0, len(a.clients))
	for model := range a.clients {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Close releases every provider client.
func (a *Adapter) Close() error {
	var firstErr error
	for _, client := range a.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CompleteAsync runs one completion prompt through the conversation loop
// and returns the terminal result.
func (a *Adapter) CompleteAsync(
	ctx context.Context,
	model string,
	prompt *scenario.CompletionPrompt,
) (*scenario.CompletionResult, error) {
	if prompt == nil {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{"field": "prompt"})
	}
	if prompt.User.Role != scenario.RoleUser {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{
			"reason": "prompt turn is not a user turn", "role": prompt.User.Role,
		})
	}
	client, ok := a.clients[model]
	if !ok {
		return nil, core.NewError(nil, core.ErrCodeInvalidInput, map[string]any{
			"reason": "unsupported model", "model": model,
		})
	}
	request, err := a.buildRequest(model, prompt)
	if err != nil {
		return nil, err
	}
	loop := newConversationLoop(client, a.invoker, a.executor)
	response, audits, err := loop.Run(ctx, request, a.cfg.maxToolRounds())
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug(
		"completion finished",
		"session_id", prompt.SessionID,
		"model", model,
		"tool_calls", len(audits),
		"finish_reason", response.FinishReason,
	)
	return a.buildResult(prompt, response, audits), nil
}

func (a *Adapter) buildRequest(model string, prompt *scenario.CompletionPrompt) (*LLMRequest, error) {
	params := prompt.User.Parameters
	options := CallOptions{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	}
	if params.Temperature != nil {
		options.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		options.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		options.MaxTokens = *params.MaxTokens
	}
	if format := params.ResponseFormat; format != nil {
		switch format.Type {
		case scenario.ResponseFormatText:
			options.ResponseFormat = FormatText
		case scenario.ResponseFormatJSONObject:
			options.ResponseFormat = FormatJSONObject
		case scenario.ResponseFormatJSONSchema:
			options.ResponseFormat = FormatJSONSchema
			options.ResponseSchema = format.Schema
		}
	}
	tools, err := collectTools(params)
	if err != nil {
		return nil, err
	}
	if params.Functions != nil {
		switch params.Functions.Call.Mode {
		case scenario.FunctionCallAuto:
			options.ToolChoice = ToolChoiceAuto
		case scenario.FunctionCallNone:
			options.ToolChoice = ToolChoiceNone
		case scenario.FunctionCallSpecific:
			options.ToolChoice = params.Functions.Call.Name
		}
	}
	request := &LLMRequest{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: prompt.User.Content}},
		Tools:    tools,
		Options:  options,
	}
	if prompt.System != nil {
		request.SystemPrompt = prompt.System.Content
	}
	return request, nil
}

// collectTools merges the turn's function and tool specs into provider tool
// definitions, parsing each resolved schema literal.
func collectTools(params scenario.TurnParameters) ([]ToolDefinition, error) {
	var specs []scenario.FunctionSpec
	if params.Functions != nil {
		specs = append(specs, params.Functions.Functions...)
	}
	specs = append(specs, params.Tools...)
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		parameters := map[string]any{}
		if spec.Parameters != "" {
			if err := json.Unmarshal([]byte(spec.Parameters), &parameters); err != nil {
				return nil, core.NewError(err, core.ErrCodeInvalidDefinition, map[string]any{
					"function": spec.Name,
				})
			}
		}
		tools = append(tools, ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		})
	}
	return tools, nil
}

func (a *Adapter) buildResult(
	prompt *scenario.CompletionPrompt,
	response *LLMResponse,
	audits []scenario.ToolCallAudit,
) *scenario.CompletionResult {
	metadata := scenario.ResultMetadata{
		ID:           response.ID,
		Model:        response.Model,
		FinishReason: response.FinishReason,
		ToolCalls:    audits,
		Extras:       prompt.Metadata,
	}
	if response.Usage != nil {
		input, output, total := response.Usage.InputTokens, response.Usage.OutputTokens, response.Usage.TotalTokens
		metadata.InputTokens = &input
		metadata.OutputTokens = &output
		metadata.TotalTokens = &total
	}
	result := &scenario.CompletionResult{
		SessionID:  prompt.SessionID,
		UserPrompt: prompt.User,
		Content:    response.Content,
		Metadata:   metadata,
	}
	if prompt.System != nil {
		result.SystemPrompt = prompt.System.Content
	}
	return result
}

func jsonUnmarshal(content string, dest any) error {
	return json.Unmarshal([]byte(content), dest)
}
