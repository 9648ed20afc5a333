package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var _ LLMClient = (*LangChainClient)(nil)

// LangChainClient adapts a langchaingo model to the LLMClient interface.
type LangChainClient struct {
	model llms.Model
}

// NewLangChainClient opens one provider client for model using the adapter
// configuration: API key, base URL, organization, and network timeout.
func NewLangChainClient(cfg *Config, model string) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OrganizationID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OrganizationID))
	}
	backing, err := openai.New(opts...)
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeProviderError, map[string]any{"model": model})
	}
	return &LangChainClient{model: backing}, nil
}

// NewLangChainClientFromModel wraps an already-constructed langchaingo
// model, for tests and alternative providers.
func NewLangChainClientFromModel(model llms.Model) *LangChainClient {
	return &LangChainClient{model: model}
}

func (c *LangChainClient) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages := convertMessages(req)
	options := buildCallOptions(req)
	response, err := c.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewError(ctx.Err(), core.ErrCodeCancelled, map[string]any{"model": req.Model})
		}
		return nil, core.NewError(err, core.ErrCodeProviderError, map[string]any{"model": req.Model})
	}
	return convertResponse(req.Model, response)
}

func (c *LangChainClient) Close() error { return nil }

func convertMessages(req *LLMRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch {
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			parts := make([]llms.ContentPart, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, llms.TextContent{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case msg.Role == RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			messages = append(messages, llms.TextParts(mapRole(msg.Role), msg.Content))
		}
	}
	return messages
}

func mapRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleUser:
		return llms.ChatMessageTypeHuman
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

func buildCallOptions(req *LLMRequest) []llms.CallOption {
	options := []llms.CallOption{
		llms.WithTemperature(req.Options.Temperature),
		llms.WithTopP(req.Options.TopP),
		llms.WithMaxTokens(req.Options.MaxTokens),
	}
	if req.Model != "" {
		options = append(options, llms.WithModel(req.Model))
	}
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(convertTools(req.Tools)))
		switch req.Options.ToolChoice {
		case "", ToolChoiceAuto:
		case ToolChoiceNone:
			options = append(options, llms.WithToolChoice(ToolChoiceNone))
		default:
			options = append(options, llms.WithToolChoice(map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.Options.ToolChoice},
			}))
		}
	}
	// Schema-constrained formats ride JSON mode; the conversation loop
	// validates the terminal content against the schema.
	if req.Options.ResponseFormat == FormatJSONObject || req.Options.ResponseFormat == FormatJSONSchema {
		options = append(options, llms.WithJSONMode())
	}
	return options
}

func convertTools(tools []ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func convertResponse(model string, resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, core.NewError(nil, core.ErrCodeProviderError, map[string]any{
			"model": model, "reason": "empty response",
		})
	}
	choice := resp.Choices[0]
	out := &LLMResponse{
		Model:        model,
		Content:      choice.Content,
		FinishReason: choice.StopReason,
	}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: json.RawMessage(call.FunctionCall.Arguments),
		})
	}
	if usage := usageFromGenerationInfo(choice.GenerationInfo); usage != nil {
		out.Usage = usage
	}
	return out, nil
}

func usageFromGenerationInfo(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}
	input, okIn := intFromAny(info["PromptTokens"])
	output, okOut := intFromAny(info["CompletionTokens"])
	total, okTotal := intFromAny(info["TotalTokens"])
	if !okIn && !okOut && !okTotal {
		return nil
	}
	if !okTotal {
		total = input + output
	}
	return &Usage{InputTokens: input, OutputTokens: output, TotalTokens: total}
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
