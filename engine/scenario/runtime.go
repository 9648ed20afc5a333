package scenario

import (
	"encoding/json"

	"github.com/scenariolab/orchestrator/engine/core"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Metadata key carried by every completion prompt: the number of user turns
// that precede it within its stage.
const MetadataHistoryDepth = "history_depth"

// ResponseFormatType is the lowered response-format discriminator.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat is the resolved response format attached to a user turn.
// Schema is non-empty exactly when Type is ResponseFormatJSONSchema.
type ResponseFormat struct {
	Type   ResponseFormatType
	Schema string
	Name   string
}

// FunctionCallMode is the lowered functionCall policy.
type FunctionCallMode string

const (
	FunctionCallAuto     FunctionCallMode = "auto"
	FunctionCallNone     FunctionCallMode = "none"
	FunctionCallSpecific FunctionCallMode = "specific"
)

// FunctionCall pairs the mode with the target name for specific calls.
type FunctionCall struct {
	Mode FunctionCallMode
	Name string
}

// FunctionSpec is a function exposed to the model with its parameter schema
// fully resolved to a JSON schema literal.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  string
}

// FunctionsConfig is the stage-level function table and call policy.
type FunctionsConfig struct {
	Functions []FunctionSpec
	Call      FunctionCall
}

// TurnParameters carries the per-turn knobs the builder projects out of the
// definition. Optional fields are nil when the turn does not set them;
// Extras holds any author-supplied parameters that are not well-known.
// Functions and Tools are inlined from the stage so each turn is a
// self-contained invocation unit. The builder is the sole writer of the
// typed fields.
type TurnParameters struct {
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	ResponseFormat *ResponseFormat
	Functions      *FunctionsConfig
	Tools          []FunctionSpec
	Extras         map[string]any
}

// StageParameters is the stage-level analogue, plus the function and tool
// configurations resolved through the schema resolver.
type StageParameters struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Functions   *FunctionsConfig
	Tools       []FunctionSpec
	Extras      map[string]any
}

// PromptTurn is one message in a stage's conversation template.
type PromptTurn struct {
	Role       string
	Content    string
	Name       string
	Parameters TurnParameters
}

// RuntimeStage is a stage lowered to its executable form: an ordered turn
// list of [system?, user, user...], a resolved model, and stage parameters.
type RuntimeStage struct {
	ID         int
	Name       string
	Turns      []PromptTurn
	Model      string
	Parameters StageParameters
}

// ScenarioPrompt is the runtime representation of a whole scenario.
// Immutable after insertion into the registry cache.
type ScenarioPrompt struct {
	Name     string
	Stages   []RuntimeStage
	Metadata map[string]string
}

// CompletionPrompt is one LLM invocation unit: the stage's system turn (if
// any) paired with a single user turn.
type CompletionPrompt struct {
	SessionID string
	StageID   int
	TurnIndex int
	System    *PromptTurn
	User      PromptTurn
	Metadata  map[string]any
}

// ToolCallAudit records one function invocation issued by the model and
// executed locally.
type ToolCallAudit struct {
	ID           string          `json:"id"`
	FunctionName string          `json:"functionName"`
	Arguments    json.RawMessage `json:"arguments"`
	Result       string          `json:"result"`
}

// ResultMetadata is the audit block attached to a completion result.
type ResultMetadata struct {
	ID           string
	Model        string
	FinishReason string
	ToolCalls    []ToolCallAudit
	InputTokens  *int
	OutputTokens *int
	TotalTokens  *int
	Extras       map[string]any
}

// CompletionResult is the model's terminal response for one user turn.
type CompletionResult struct {
	SessionID    string
	SystemPrompt string
	UserPrompt   PromptTurn
	Content      string
	Metadata     ResultMetadata
}

// UserTurns returns the stage's user turns in declaration order.
func (s *RuntimeStage) UserTurns() []PromptTurn {
	users := make([]PromptTurn, 0, len(s.Turns))
	for _, turn := range s.Turns {
		if turn.Role == RoleUser {
			users = append(users, turn)
		}
	}
	return users
}

// SystemTurn returns the stage's system turn, or nil when it has none.
func (s *RuntimeStage) SystemTurn() *PromptTurn {
	for i := range s.Turns {
		if s.Turns[i].Role == RoleSystem {
			return &s.Turns[i]
		}
	}
	return nil
}

// Validate enforces the stage turn invariants: exactly zero or one system
// turn and at least one user turn.
func (s *RuntimeStage) Validate() error {
	systems, users := 0, 0
	for _, turn := range s.Turns {
		switch turn.Role {
		case RoleSystem:
			systems++
		case RoleUser:
			users++
		}
	}
	if systems > 1 {
		return core.NewError(nil, core.ErrCodeInvalidDefinition, map[string]any{
			"stage_id": s.ID, "reason": "more than one system turn",
		})
	}
	if users == 0 {
		return core.NewError(nil, core.ErrCodeInvalidDefinition, map[string]any{
			"stage_id": s.ID, "reason": "no user turns",
		})
	}
	return nil
}

// ToCompletionPrompts expands the stage into one CompletionPrompt per user
// turn, in order. Each prompt's metadata is a copy of metadata with
// history_depth set to the number of user turns preceding it.
func (s *RuntimeStage) ToCompletionPrompts(sessionID string, metadata map[string]any) []CompletionPrompt {
	system := s.SystemTurn()
	prompts := make([]CompletionPrompt, 0, len(s.Turns))
	depth := 0
	for _, turn := range s.Turns {
		if turn.Role != RoleUser {
			continue
		}
		md := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			md[k] = v
		}
		md[MetadataHistoryDepth] = depth
		prompts = append(prompts, CompletionPrompt{
			SessionID: sessionID,
			StageID:   s.ID,
			TurnIndex: depth,
			System:    system,
			User:      turn,
			Metadata:  md,
		})
		depth++
	}
	return prompts
}

// StageByID locates a stage by its id.
func (p *ScenarioPrompt) StageByID(id int) (*RuntimeStage, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i], true
		}
	}
	return nil, false
}
