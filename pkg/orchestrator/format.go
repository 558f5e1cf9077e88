package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/stentorlabs/stentor/pkg/tools"
)

var opSymbols = map[string]string{
	"add":      "+",
	"subtract": "-",
	"multiply": "*",
	"divide":   "/",
}

// formatToolResult renders a tool result for the caller. The built-in
// tools get purpose-built renderings; anything else falls back to the
// tool's own text, then to the JSON form of its output.
func formatToolResult(res *tools.Result) string {
	switch res.Tool {
	case "calculator":
		return formatCalculation(res)
	case "file_reader", "json_parser", "text_transformer":
		return res.Text
	}
	if res.Text != "" {
		return res.Text
	}
	raw, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Sprintf("%v", res.Output)
	}
	return string(raw)
}

// formatCalculation spells out the whole equation. The operands ride
// in the result metadata; a calculator result missing them renders as
// the bare value.
func formatCalculation(res *tools.Result) string {
	value, ok := res.Output.(float64)
	if !ok {
		return res.Text
	}
	a, aok := res.Metadata["a"].(float64)
	b, bok := res.Metadata["b"].(float64)
	op, known := opSymbols[res.Action]
	if !aok || !bok || !known {
		return res.Text
	}
	return fmt.Sprintf("%s %s %s = %s",
		tools.FormatNumber(a), op, tools.FormatNumber(b), tools.FormatNumber(value))
}

// snippet trims hit text for the rag_hits list. Full documents stay in
// the logs; the envelope carries just enough to show the grounding.
func snippet(text string) string {
	const limit = 240
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
