package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/scenariolab/orchestrator/engine/core"
)

// ValidationError is one well-formedness failure in a definition, addressed
// by the offending property's path.
type ValidationError struct {
	PropertyPath string
	Message      string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.PropertyPath, e.Message)
}

var definitionValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a definition against the schema and business rules and
// returns every violation found. An empty slice means the definition is
// well-formed.
func Validate(def *Definition) []ValidationError {
	if def == nil {
		return []ValidationError{{PropertyPath: "definition", Message: "definition is nil"}}
	}
	var found []ValidationError
	if err := definitionValidator.Struct(def); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				found = append(found, ValidationError{
					PropertyPath: propertyPath(fe.Namespace()),
					Message:      messageFor(fe),
				})
			}
		} else {
			found = append(found, ValidationError{PropertyPath: "definition", Message: err.Error()})
		}
	}
	found = append(found, validateResponseFormats(def)...)
	found = append(found, validateStageIDs(def)...)
	return found
}

// ValidateStrict runs Validate and folds any violations into a single
// InvalidDefinition error, the shape the builder and stores consume.
func ValidateStrict(def *Definition) error {
	found := Validate(def)
	if len(found) == 0 {
		return nil
	}
	messages := make([]string, len(found))
	details := map[string]any{}
	for i, v := range found {
		messages[i] = v.String()
		details[v.PropertyPath] = v.Message
	}
	return core.NewError(errors.New(strings.Join(messages, "; ")), core.ErrCodeInvalidDefinition, details)
}

func validateResponseFormats(def *Definition) []ValidationError {
	var found []ValidationError
	for si, stage := range def.Stages {
		for pi, prompt := range stage.UserPrompts {
			cfg := prompt.ResponseFormatConfig
			if cfg == nil {
				continue
			}
			path := fmt.Sprintf("stages[%d].userPrompts[%d].responseFormatConfig", si, pi)
			switch cfg.Type {
			case FormatText, FormatJSONObject:
			case FormatJSONSchema:
				hasSchema := strings.TrimSpace(cfg.Schema) != ""
				hasTypeName := strings.TrimSpace(cfg.ResponseTypeName) != ""
				if hasSchema == hasTypeName {
					found = append(found, ValidationError{
						PropertyPath: path,
						Message:      "JsonSchema requires exactly one of schema or responseTypeName",
					})
				}
			default:
				found = append(found, ValidationError{
					PropertyPath: path + ".type",
					Message:      fmt.Sprintf("unknown response format type %q", cfg.Type),
				})
			}
		}
	}
	return found
}

func validateStageIDs(def *Definition) []ValidationError {
	var found []ValidationError
	seen := make(map[int]int, len(def.Stages))
	for si, stage := range def.Stages {
		if prev, dup := seen[stage.ID]; dup {
			found = append(found, ValidationError{
				PropertyPath: fmt.Sprintf("stages[%d].id", si),
				Message:      fmt.Sprintf("duplicate stage id %d (first at stages[%d])", stage.ID, prev),
			})
			continue
		}
		seen[stage.ID] = si
	}
	return found
}

// propertyPath rewrites validator namespaces ("Definition.Stages[0].Name")
// into the camelCase property paths scenario authors see in their files.
func propertyPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the root struct name
	}
	for i, part := range parts {
		idx := ""
		if bracket := strings.IndexByte(part, '['); bracket >= 0 {
			idx = part[bracket:]
			part = part[:bracket]
		}
		if part != "" {
			part = strings.ToLower(part[:1]) + part[1:]
		}
		parts[i] = part + idx
	}
	return strings.Join(parts, ".")
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s item(s)", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
