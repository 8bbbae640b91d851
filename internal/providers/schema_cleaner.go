package providers

// Schema keys that MCP servers emit but chat-completions function
// parameters reject or ignore.
var droppedSchemaKeys = map[string]bool{
	"$schema":  true,
	"$id":      true,
	"$comment": true,
}

// CleanToolSchemas returns a copy of tools whose parameter schemas are safe
// to send as OpenAI function definitions.
func CleanToolSchemas(tools []ToolDefinition) []ToolDefinition {
	if len(tools) == 0 {
		return tools
	}
	cleaned := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		cleaned[i] = ToolDefinition{
			Type: t.Type,
			Function: ToolFunctionSchema{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  CleanSchema(t.Function.Parameters),
			},
		}
	}
	return cleaned
}

// CleanSchema strips unsupported keys recursively and guarantees the root is
// an object schema with a properties map.
func CleanSchema(params map[string]any) map[string]any {
	out := cleanSchema(params)
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

func cleanSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	result := make(map[string]any, len(schema))
	for k, v := range schema {
		if droppedSchemaKeys[k] {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			result[k] = cleanSchema(val)
		case []any:
			result[k] = cleanSchemaSlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

// cleanSchemaSlice recurses into arrays (e.g. "anyOf", "oneOf", "allOf").
func cleanSchemaSlice(items []any) []any {
	result := make([]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			result[i] = cleanSchema(m)
		} else {
			result[i] = item
		}
	}
	return result
}
