package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/scenariolab/orchestrator/engine/core"
	"github.com/scenariolab/orchestrator/engine/schema"
	"github.com/scenariolab/orchestrator/pkg/logger"
)

// Builder lowers validated definitions to their runtime representation,
// resolving response-format and function-parameter schemas on the way.
type Builder struct {
	resolver *schema.Resolver
}

func NewBuilder(resolver *schema.Resolver) *Builder {
	if resolver == nil {
		resolver = schema.NewResolver(nil)
	}
	return &Builder{resolver: resolver}
}

// Build validates def and lowers it. The returned ScenarioPrompt is
// immutable from the caller's point of view.
func (b *Builder) Build(ctx context.Context, def *Definition) (*ScenarioPrompt, error) {
	if err := ValidateStrict(def); err != nil {
		return nil, err
	}
	stages := make([]RuntimeStage, 0, len(def.Stages))
	for _, stageDef := range def.Stages {
		stage, err := b.buildStage(ctx, def, &stageDef)
		if err != nil {
			return nil, err
		}
		stages = append(stages, *stage)
	}
	metadata := make(map[string]string, len(def.Metadata))
	for k, v := range def.Metadata {
		metadata[k] = v
	}
	return &ScenarioPrompt{Name: def.Name, Stages: stages, Metadata: metadata}, nil
}

func (b *Builder) buildStage(ctx context.Context, def *Definition, stageDef *StageDefinition) (*RuntimeStage, error) {
	params, err := b.buildStageParameters(ctx, stageDef)
	if err != nil {
		return nil, err
	}
	turns := make([]PromptTurn, 0, len(stageDef.UserPrompts)+1)
	if strings.TrimSpace(stageDef.SystemPrompt) != "" {
		turns = append(turns, PromptTurn{
			Role:    RoleSystem,
			Content: stageDef.SystemPrompt,
			Name:    fmt.Sprintf("stage-%d-system", stageDef.ID),
		})
	}
	for i, promptDef := range stageDef.UserPrompts {
		turn, err := b.buildUserTurn(ctx, stageDef, params, &promptDef, i)
		if err != nil {
			return nil, err
		}
		turns = append(turns, *turn)
	}
	model := stageDef.Model
	if model == "" && len(def.ValidModels) > 0 {
		model = def.ValidModels[0]
	}
	stage := &RuntimeStage{
		ID:         stageDef.ID,
		Name:       stageDef.Name,
		Turns:      turns,
		Model:      model,
		Parameters: *params,
	}
	if err := stage.Validate(); err != nil {
		return nil, err
	}
	return stage, nil
}

func (b *Builder) buildUserTurn(
	ctx context.Context,
	stageDef *StageDefinition,
	stageParams *StageParameters,
	promptDef *UserPromptDefinition,
	index int,
) (*PromptTurn, error) {
	format, err := b.resolveResponseFormat(ctx, promptDef.ResponseFormatConfig)
	if err != nil {
		return nil, err
	}
	extras := make(map[string]any, len(promptDef.Parameters))
	for k, v := range promptDef.Parameters {
		extras[k] = v
	}
	params := TurnParameters{
		Temperature:    firstFloat(promptDef.Temperature, stageDef.Temperature),
		TopP:           firstFloat(promptDef.TopP, stageDef.TopP),
		MaxTokens:      firstInt(promptDef.MaxTokens, stageDef.MaxTokens),
		ResponseFormat: format,
		Functions:      stageParams.Functions,
		Tools:          stageParams.Tools,
		Extras:         extras,
	}
	return &PromptTurn{
		Role:       RoleUser,
		Content:    promptDef.Template,
		Name:       fmt.Sprintf("stage-%d-user-%d", stageDef.ID, index+1),
		Parameters: params,
	}, nil
}

// resolveResponseFormat lowers a response-format config. A JsonSchema config
// whose responseTypeName cannot be resolved degrades to JsonObject rather
// than failing the build.
func (b *Builder) resolveResponseFormat(ctx context.Context, cfg *ResponseFormatConfig) (*ResponseFormat, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case FormatText:
		return &ResponseFormat{Type: ResponseFormatText}, nil
	case FormatJSONObject:
		return &ResponseFormat{Type: ResponseFormatJSONObject}, nil
	case FormatJSONSchema:
		if name := strings.TrimSpace(cfg.ResponseTypeName); name != "" {
			literal, ok := b.resolver.ResolveType(name)
			if !ok {
				logger.FromContext(ctx).Warn(
					"response type not registered, downgrading to json_object",
					"response_type", name,
				)
				return &ResponseFormat{Type: ResponseFormatJSONObject}, nil
			}
			return &ResponseFormat{Type: ResponseFormatJSONSchema, Schema: literal, Name: name}, nil
		}
		if literal := strings.TrimSpace(cfg.Schema); literal != "" {
			resolved, err := b.resolver.ResolveLiteral(literal)
			if err != nil {
				return nil, err
			}
			return &ResponseFormat{Type: ResponseFormatJSONSchema, Schema: resolved}, nil
		}
		return nil, core.NewError(nil, core.ErrCodeInvalidDefinition, map[string]any{
			"reason": "JsonSchema format without schema or responseTypeName",
		})
	default:
		return nil, core.NewError(nil, core.ErrCodeInvalidDefinition, map[string]any{
			"reason": fmt.Sprintf("unknown response format type %q", cfg.Type),
		})
	}
}

func (b *Builder) buildStageParameters(ctx context.Context, stageDef *StageDefinition) (*StageParameters, error) {
	extras := make(map[string]any, len(stageDef.Parameters))
	for k, v := range stageDef.Parameters {
		extras[k] = v
	}
	params := &StageParameters{
		Temperature: stageDef.Temperature,
		TopP:        stageDef.TopP,
		MaxTokens:   stageDef.MaxTokens,
		Extras:      extras,
	}
	if stageDef.Functions != nil {
		functions := make([]FunctionSpec, 0, len(stageDef.Functions.Functions))
		for _, fnDef := range stageDef.Functions.Functions {
			spec, err := b.resolveFunctionSpec(ctx, &fnDef)
			if err != nil {
				return nil, err
			}
			functions = append(functions, *spec)
		}
		params.Functions = &FunctionsConfig{
			Functions: functions,
			Call:      lowerFunctionCall(stageDef.Functions.FunctionCall),
		}
	}
	for _, toolDef := range stageDef.Tools {
		spec, err := b.resolveFunctionSpec(ctx, &toolDef.Function)
		if err != nil {
			return nil, err
		}
		params.Tools = append(params.Tools, *spec)
	}
	return params, nil
}

// resolveFunctionSpec applies the same schema policy as response formats:
// named type first, then literal, then an empty object schema.
func (b *Builder) resolveFunctionSpec(ctx context.Context, fnDef *FunctionDefinition) (*FunctionSpec, error) {
	spec := &FunctionSpec{Name: fnDef.Name, Description: fnDef.Description}
	if name := strings.TrimSpace(fnDef.ParametersType); name != "" {
		if literal, ok := b.resolver.ResolveType(name); ok {
			spec.Parameters = literal
			return spec, nil
		}
		logger.FromContext(ctx).Warn(
			"function parameter type not registered, falling back",
			"function", fnDef.Name,
			"parameters_type", name,
		)
	}
	if literal := strings.TrimSpace(fnDef.Parameters); literal != "" {
		resolved, err := b.resolver.ResolveLiteral(literal)
		if err != nil {
			return nil, err
		}
		spec.Parameters = resolved
		return spec, nil
	}
	spec.Parameters = "{}"
	return spec, nil
}

func lowerFunctionCall(raw string) FunctionCall {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return FunctionCall{Mode: FunctionCallAuto}
	case "none":
		return FunctionCall{Mode: FunctionCallNone}
	default:
		return FunctionCall{Mode: FunctionCallSpecific, Name: raw}
	}
}

func firstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
