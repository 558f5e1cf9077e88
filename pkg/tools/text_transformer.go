package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/stentorlabs/stentor/pkg/config"
)

// TextTransformer applies simple string transformations. It backs the
// data_processor agent steps that reshape text between calls.
type TextTransformer struct {
	cfg *config.ToolConfig
}

func NewTextTransformer() *TextTransformer {
	cfg := &config.ToolConfig{
		ID:          "text_transformer",
		Description: "Transform and measure text",
		Category:    config.CategoryData,
		Parameters: map[string]config.ToolParameterConfig{
			"text": {Type: "string", Description: "Input text", Required: true},
		},
		Actions: map[string]config.ToolActionConfig{
			"upper":   {Description: "Uppercase the text"},
			"lower":   {Description: "Lowercase the text"},
			"reverse": {Description: "Reverse the text"},
			"trim":    {Description: "Trim surrounding whitespace"},
			"count":   {Description: "Count words and characters"},
		},
	}
	cfg.SetDefaults()
	return &TextTransformer{cfg: cfg}
}

func (t *TextTransformer) ID() string                     { return t.cfg.ID }
func (t *TextTransformer) Descriptor() *config.ToolConfig { return t.cfg }

func (t *TextTransformer) Execute(ctx context.Context, action string, params map[string]any) (*Result, error) {
	text := params["text"].(string)

	switch action {
	case "upper":
		out := strings.ToUpper(text)
		return &Result{Output: out, Text: out}, nil
	case "lower":
		out := strings.ToLower(text)
		return &Result{Output: out, Text: out}, nil
	case "reverse":
		out := reverseString(text)
		return &Result{Output: out, Text: out}, nil
	case "trim":
		out := strings.TrimSpace(text)
		return &Result{Output: out, Text: out}, nil
	case "count":
		words := len(strings.Fields(text))
		chars := utf8.RuneCountInString(text)
		return &Result{
			Output: map[string]any{"words": words, "characters": chars},
			Text:   strconv.Itoa(words) + " words, " + strconv.Itoa(chars) + " characters",
		}, nil
	default:
		return nil, &ValidationError{Tool: t.cfg.ID, Reason: fmt.Sprintf("unknown action %q", action)}
	}
}

// reverseString reverses by rune so multi-byte characters survive.
func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

var _ Tool = (*TextTransformer)(nil)
