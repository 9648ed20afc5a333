package contextstore

import "fmt"

// StageKey composes the canonical stage key used by every context-store
// entry: "{stageID}-{turnIndex+1}". turnIndex is zero-based; the key is
// one-based to read naturally next to 1-indexed user prompts.
func StageKey(stageID int, turnIndex int) string {
	return fmt.Sprintf("%d-%d", stageID, turnIndex+1)
}

// InputKey returns "stage:{stageKey}:input:{name}".
func InputKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:input:%s", stageKey, name)
}

// InputParamKey returns "stage:{stageKey}:input:params:{name}".
func InputParamKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:input:params:%s", stageKey, name)
}

// MetadataKey returns "stage:{stageKey}:metadata:{name}".
func MetadataKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:metadata:%s", stageKey, name)
}

// ToolKey returns "stage:{stageKey}:tool:{toolName}:{callID}".
func ToolKey(stageKey, toolName, callID string) string {
	return fmt.Sprintf("stage:%s:tool:%s:%s", stageKey, toolName, callID)
}

// OutputKey returns "stage:{stageKey}:output".
func OutputKey(stageKey string) string {
	return fmt.Sprintf("stage:%s:output", stageKey)
}

// OutputParamKey returns "stage:{stageKey}:output:params:{name}".
func OutputParamKey(stageKey, name string) string {
	return fmt.Sprintf("stage:%s:output:params:%s", stageKey, name)
}

// OutputLogKey returns "stage:{stageKey}:output:{logType}".
func OutputLogKey(stageKey, logType string) string {
	return fmt.Sprintf("stage:%s:output:%s", stageKey, logType)
}
