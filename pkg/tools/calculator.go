package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stentorlabs/stentor/pkg/config"
)

// Calculator does arithmetic over two operands. Each operation is its
// own action so routing rules can target them directly.
type Calculator struct {
	cfg *config.ToolConfig
}

func NewCalculator() *Calculator {
	cfg := &config.ToolConfig{
		ID:          "calculator",
		Description: "Arithmetic over two numbers",
		Category:    config.CategoryData,
		Parameters: map[string]config.ToolParameterConfig{
			"a": {Type: "number", Description: "Left operand", Required: true},
			"b": {Type: "number", Description: "Right operand", Required: true},
		},
		Actions: map[string]config.ToolActionConfig{
			"add":      {Description: "a + b"},
			"subtract": {Description: "a - b"},
			"multiply": {Description: "a * b"},
			"divide":   {Description: "a / b"},
		},
	}
	cfg.SetDefaults()
	return &Calculator{cfg: cfg}
}

func (t *Calculator) ID() string                     { return t.cfg.ID }
func (t *Calculator) Descriptor() *config.ToolConfig { return t.cfg }

func (t *Calculator) Execute(ctx context.Context, action string, params map[string]any) (*Result, error) {
	a := params["a"].(float64)
	b := params["b"].(float64)

	var value float64
	switch action {
	case "add":
		value = a + b
	case "subtract":
		value = a - b
	case "multiply":
		value = a * b
	case "divide":
		if b == 0 {
			return nil, &ExecutionError{Tool: t.cfg.ID, Action: action, Message: "division by zero"}
		}
		value = a / b
	default:
		return nil, &ValidationError{Tool: t.cfg.ID, Reason: fmt.Sprintf("unknown action %q", action)}
	}

	return &Result{
		Output: value,
		Text:   FormatNumber(value),
		Metadata: map[string]any{
			"a": a,
			"b": b,
		},
	}, nil
}

// FormatNumber renders a float without trailing zeros, so integral
// results read as integers.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ Tool = (*Calculator)(nil)
