package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stentorlabs/stentor/pkg/config"
)

// JSONParser parses or validates JSON documents. Validation never
// fails the call: malformed input is a verdict, not an error.
type JSONParser struct {
	cfg *config.ToolConfig
}

func NewJSONParser() *JSONParser {
	cfg := &config.ToolConfig{
		ID:          "json_parser",
		Description: "Parse and validate JSON documents",
		Category:    config.CategoryData,
		Parameters: map[string]config.ToolParameterConfig{
			"json": {Type: "string", Description: "JSON document", Required: true},
		},
		Actions: map[string]config.ToolActionConfig{
			"parse":    {Description: "Parse and pretty-print the document"},
			"validate": {Description: "Report whether the document is valid JSON"},
		},
	}
	cfg.SetDefaults()
	return &JSONParser{cfg: cfg}
}

func (t *JSONParser) ID() string                     { return t.cfg.ID }
func (t *JSONParser) Descriptor() *config.ToolConfig { return t.cfg }

func (t *JSONParser) Execute(ctx context.Context, action string, params map[string]any) (*Result, error) {
	doc := params["json"].(string)

	var parsed any
	parseErr := json.Unmarshal([]byte(doc), &parsed)

	switch action {
	case "parse":
		if parseErr != nil {
			return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: fmt.Sprintf("invalid JSON: %v", parseErr)}
		}
		pretty, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: "cannot render document", Err: err}
		}
		return &Result{Output: parsed, Text: string(pretty)}, nil

	case "validate":
		if parseErr != nil {
			return &Result{
				Output: false,
				Text:   fmt.Sprintf("invalid JSON: %v", parseErr),
			}, nil
		}
		return &Result{Output: true, Text: "valid JSON"}, nil

	default:
		return nil, &ValidationError{Tool: t.cfg.ID, Reason: fmt.Sprintf("unknown action %q", action)}
	}
}

var _ Tool = (*JSONParser)(nil)
