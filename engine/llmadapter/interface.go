package llmadapter

import (
	"context"
	"encoding/json"
)

// Message roles on the provider wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Response format identifiers on the provider wire.
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
)

// Tool choice policies.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// LLMRequest is one provider call, independent of the backing SDK.
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Options      CallOptions
}

// Message is one conversation entry. Only assistant messages carry
// ToolCalls; only tool messages carry a ToolCallID linking back to the call
// they answer.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition advertises one callable function to the model. Parameters
// is a parsed JSON schema document.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CallOptions carries the per-request knobs.
type CallOptions struct {
	Temperature    float64
	TopP           float64
	MaxTokens      int
	ResponseFormat string
	ResponseSchema string
	ToolChoice     string
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// LLMResponse is one provider response.
type LLMResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	ToolCalls    []ToolCall
	Usage        *Usage
}

// LLMClient is the provider-facing client the conversation loop drives.
type LLMClient interface {
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	Close() error
}
