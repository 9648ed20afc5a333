package scenario

// Definition is the declarative form of a scenario as loaded from a YAML or
// JSON file. Definitions are read-only once loaded; the builder lowers them
// to the runtime form.
type Definition struct {
	Name        string            `yaml:"name"        json:"name"        validate:"required"`
	Version     string            `yaml:"version"     json:"version"`
	Description string            `yaml:"description" json:"description"`
	ValidModels []string          `yaml:"validModels" json:"validModels" validate:"min=1"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata"`
	Stages      []StageDefinition `yaml:"stages"      json:"stages"      validate:"min=1,dive"`
}

// StageDefinition is one unit of work in a scenario: at most one system
// prompt and one or more user-prompt templates with shared configuration.
type StageDefinition struct {
	ID           int                    `yaml:"id"           json:"id"`
	Name         string                 `yaml:"name"         json:"name"`
	Description  string                 `yaml:"description"  json:"description"`
	SystemPrompt string                 `yaml:"systemPrompt" json:"systemPrompt"`
	UserPrompts  []UserPromptDefinition `yaml:"userPrompts"  json:"userPrompts" validate:"min=1,dive"`
	Model        string                 `yaml:"model"        json:"model"`
	Temperature  *float64               `yaml:"temperature"  json:"temperature"  validate:"omitempty,gte=0,lte=1"`
	TopP         *float64               `yaml:"topP"         json:"topP"         validate:"omitempty,gte=0,lte=1"`
	MaxTokens    *int                   `yaml:"maxTokens"    json:"maxTokens"    validate:"omitempty,gt=0"`
	Functions    *FunctionsDefinition   `yaml:"functions"    json:"functions"`
	Tools        []ToolDefinition       `yaml:"tools,omitempty" json:"tools"        validate:"omitempty,dive"`
	Parameters   map[string]any         `yaml:"parameters,omitempty" json:"parameters"`
}

// UserPromptDefinition is one templated user turn. Numeric knobs left unset
// inherit the stage-level values.
type UserPromptDefinition struct {
	Template             string                `yaml:"template"             json:"template" validate:"required"`
	Parameters           map[string]any        `yaml:"parameters,omitempty" json:"parameters"`
	Temperature          *float64              `yaml:"temperature"          json:"temperature" validate:"omitempty,gte=0,lte=1"`
	TopP                 *float64              `yaml:"topP"                 json:"topP"        validate:"omitempty,gte=0,lte=1"`
	MaxTokens            *int                  `yaml:"maxTokens"            json:"maxTokens"   validate:"omitempty,gt=0"`
	ResponseFormatConfig *ResponseFormatConfig `yaml:"responseFormatConfig" json:"responseFormatConfig"`
}

// Response format types accepted in scenario files.
const (
	FormatText       = "Text"
	FormatJSONObject = "JsonObject"
	FormatJSONSchema = "JsonSchema"
)

// ResponseFormatConfig selects the provider response format for a user
// prompt. When Type is JsonSchema exactly one of Schema or ResponseTypeName
// must be present.
type ResponseFormatConfig struct {
	Type             string `yaml:"type"             json:"type"`
	Schema           string `yaml:"schema"           json:"schema"`
	ResponseTypeName string `yaml:"responseTypeName" json:"responseTypeName"`
}

// FunctionsDefinition lists the functions a stage exposes to the model,
// plus the call policy: "auto", "none", or the name of a specific function.
type FunctionsDefinition struct {
	Functions    []FunctionDefinition `yaml:"functions,omitempty" json:"functions" validate:"omitempty,dive"`
	FunctionCall string               `yaml:"functionCall" json:"functionCall"`
}

// FunctionDefinition declares a callable function. Parameters is a JSON
// schema literal; ParametersType names a pre-registered schema type.
type FunctionDefinition struct {
	Name           string `yaml:"name"           json:"name" validate:"required"`
	Description    string `yaml:"description"    json:"description"`
	Parameters     string `yaml:"parameters"     json:"parameters"`
	ParametersType string `yaml:"parametersType" json:"parametersType"`
}

// ToolDefinition is the tool-flavored wrapper around a function definition.
type ToolDefinition struct {
	Type     string             `yaml:"type"     json:"type"`
	Function FunctionDefinition `yaml:"function" json:"function" validate:"required"`
}
