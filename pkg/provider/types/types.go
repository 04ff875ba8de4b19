package types

import "context"

// Tier selects how much model capability a completion request needs.
// Batch extraction runs on Simple, clustering and priority analysis on
// Medium, final narrative generation on Complex.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Param describes one argument of a tool exposed to the model.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Tool is a model-invokable function with a static descriptor. Run
// receives the model-supplied arguments plus caller metadata such as
// user_id.
type Tool struct {
	Name        string
	Description string
	Parameters  []Param
	Run         func(ctx context.Context, args map[string]any, meta map[string]string) (any, error)
}

// ToolCall records one tool invocation the model requested during a
// tool-augmented completion.
type ToolCall struct {
	Name      string
	Arguments map[string]any
	Result    string
	Err       error
}

// ToolRun is the outcome of a tool-augmented completion.
type ToolRun struct {
	FinalText  string
	Calls      []ToolCall
	Iterations int
}

// Schema renders the tool's parameter list as a JSON Schema object,
// the shape function-calling APIs expect.
func (t Tool) Schema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := make([]string, 0, len(t.Parameters))
	for _, param := range t.Parameters {
		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
