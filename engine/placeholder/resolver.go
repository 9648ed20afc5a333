package placeholder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/scenariolab/orchestrator/engine/contextstore"
	"github.com/tidwall/gjson"
)

// Marker grammar. Context markers ({{key}}) resolve against the session's
// context store and may contain ':' and '-' for output-path references.
// Parameter markers ({name}) are plain identifiers so that JSON-looking
// text such as "{x:1}" in a template is never treated as a marker.
var (
	contextMarker = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	paramMarker   = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

const outputSegment = ":output"

// Builtin context key resolved without touching the store.
const KeySessionID = "sessionId"

// Resolver substitutes {{key}} context lookups and {name} parameter lookups
// into user-turn content. Context markers resolve first; a parameter whose
// value is itself a {{key}} marker follows one level of indirection into the
// context store.
type Resolver struct {
	items contextstore.ItemStore
}

func NewResolver(items contextstore.ItemStore) *Resolver {
	return &Resolver{items: items}
}

// ResolveContent returns content with every resolvable marker substituted.
// Markers that cannot be resolved — unknown parameter names, plain context
// keys with no stored item — are left in place for the validation
// middleware to reject. Output-path references degrade instead of failing:
// an absent record resolves to the empty string.
func (r *Resolver) ResolveContent(
	ctx context.Context,
	sessionID, content string,
	params map[string]any,
) (string, error) {
	var firstErr error
	resolved := replaceAllSubmatch(contextMarker, content, func(key string) (string, bool) {
		value, found, err := r.resolveContextKey(ctx, sessionID, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return "", false
		}
		return value, found
	})
	if firstErr != nil {
		return "", firstErr
	}
	resolved = replaceAllSubmatch(paramMarker, resolved, func(name string) (string, bool) {
		value, ok := params[name]
		if !ok {
			return "", false
		}
		rendered, found, err := r.resolveParamValue(ctx, sessionID, value)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return "", false
		}
		return rendered, found
	})
	if firstErr != nil {
		return "", firstErr
	}
	return resolved, nil
}

// HasMarkers reports whether content still contains any marker of either
// syntax, using the same grammar ResolveContent substitutes with.
func HasMarkers(content string) bool {
	return contextMarker.MatchString(content) || paramMarker.MatchString(content)
}

// Markers returns the distinct marker texts remaining in content, for error
// details.
func Markers(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range contextMarker.FindAllString(content, -1) {
		if _, dup := seen[m]; !dup {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	// Context markers are blanked before the parameter scan so the "{a}"
	// inside "{{a}}" is not reported as a second marker.
	for _, m := range paramMarker.FindAllString(contextMarker.ReplaceAllString(content, " "), -1) {
		if _, dup := seen[m]; !dup {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func (r *Resolver) resolveContextKey(ctx context.Context, sessionID, key string) (string, bool, error) {
	if key == KeySessionID {
		return sessionID, true, nil
	}
	if recordKey, path, ok := splitOutputPath(key); ok {
		value, err := r.resolveOutputPath(ctx, sessionID, recordKey, path)
		return value, err == nil, err
	}
	raw, found, err := r.items.LoadRaw(ctx, sessionID, key)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return stringForm(raw), true, nil
}

// splitOutputPath parses an output-path reference: the record key runs
// through ":output", and anything after the next ':' is a JSON path whose
// ':' separators map to gjson '.' segments.
func splitOutputPath(key string) (recordKey, path string, ok bool) {
	idx := strings.Index(key, outputSegment)
	if idx < 0 {
		return "", "", false
	}
	rest := key[idx+len(outputSegment):]
	if rest == "" {
		return key, "", true
	}
	if !strings.HasPrefix(rest, ":") {
		return "", "", false
	}
	return key[:idx+len(outputSegment)], strings.ReplaceAll(rest[1:], ":", "."), true
}

func (r *Resolver) resolveOutputPath(ctx context.Context, sessionID, recordKey, path string) (string, error) {
	raw, found, err := r.items.LoadRaw(ctx, sessionID, recordKey)
	if err != nil {
		return "", err
	}
	if !found && !strings.HasPrefix(recordKey, "stage:") {
		// Templates may reference outputs by bare stage key ("1-1:output");
		// retry with the canonical prefix the persistence middleware writes.
		raw, found, err = r.items.LoadRaw(ctx, sessionID, "stage:"+recordKey)
		if err != nil {
			return "", err
		}
	}
	if !found {
		return "", nil
	}
	record := stringForm(raw)
	if path == "" {
		return record, nil
	}
	if !gjson.Valid(record) {
		return record, nil
	}
	result := gjson.Get(record, path)
	if !result.Exists() {
		return record, nil
	}
	if result.Type == gjson.Null {
		return "{}", nil
	}
	if result.Type == gjson.String {
		return result.String(), nil
	}
	return result.Raw, nil
}

// resolveParamValue renders one stage-parameter value. A string of the form
// "{{key}}" follows a single indirection into the context store; anything
// else renders verbatim (scalars via Sprint, composites as JSON).
func (r *Resolver) resolveParamValue(ctx context.Context, sessionID string, value any) (string, bool, error) {
	if s, isString := value.(string); isString {
		if m := contextMarker.FindStringSubmatch(s); m != nil && m[0] == s {
			return r.resolveContextKey(ctx, sessionID, m[1])
		}
		return s, true, nil
	}
	switch value.(type) {
	case nil:
		return "", true, nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(value), true, nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value), true, nil
		}
		return string(raw), true, nil
	}
}

// stringForm renders a stored JSON value the way templates expect: JSON
// strings unquote, everything else keeps its JSON encoding.
func stringForm(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return trimmed
}

// replaceAllSubmatch replaces every match of re in content with the value
// produced by resolve applied to its first capture group, leaving matches
// resolve declines in place.
func replaceAllSubmatch(re *regexp.Regexp, content string, resolve func(string) (string, bool)) string {
	return re.ReplaceAllStringFunc(content, func(match string) string {
		groups := re.FindStringSubmatch(match)
		if value, ok := resolve(groups[1]); ok {
			return value
		}
		return match
	})
}
