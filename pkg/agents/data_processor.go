package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stentorlabs/stentor/pkg/config"
)

// DataProcessor validates and summarizes structured data. It leans on
// the json_parser and text_transformer tools for the heavy lifting so
// tool permissions and constraints stay in force.
type DataProcessor struct {
	BaseAgent
}

func NewDataProcessor(cfg *config.AgentConfig) *DataProcessor {
	return &DataProcessor{BaseAgent: NewBaseAgent(cfg)}
}

func (a *DataProcessor) Execute(ctx context.Context, input Input, svc Services) (*Output, error) {
	doc := extractDocument(input)
	if doc == "" {
		return a.describeText(ctx, input.Message, svc)
	}

	verdict, err := svc.ExecuteTool(ctx, "json_parser", "validate", map[string]any{"json": doc})
	if err != nil {
		return nil, err
	}
	if valid, _ := verdict.Output.(bool); !valid {
		return &Output{
			Text:     "The data is not valid JSON. " + verdict.Text + ".",
			Metadata: map[string]any{"valid": false},
		}, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("parsing validated document: %w", err)
	}

	summary := summarizeValue(parsed)
	return &Output{
		Text: "The data is valid JSON. " + summary,
		Metadata: map[string]any{
			"valid": true,
			"bytes": len(doc),
		},
	}, nil
}

// describeText handles messages with no JSON in them: the transformer
// counts what it can and the answer says so.
func (a *DataProcessor) describeText(ctx context.Context, message string, svc Services) (*Output, error) {
	counted, err := svc.ExecuteTool(ctx, "text_transformer", "count", map[string]any{"text": message})
	if err != nil {
		return nil, err
	}
	return &Output{
		Text:     "No structured data found. Treating the message as plain text: " + counted.Text + ".",
		Metadata: map[string]any{"valid": false, "plain_text": true},
	}, nil
}

// extractDocument pulls a JSON document out of the invocation: an
// explicit param wins, then the largest braced or bracketed region of
// the message.
func extractDocument(input Input) string {
	for _, key := range []string{"json", "data"} {
		if doc, ok := input.Params[key].(string); ok && doc != "" {
			return doc
		}
	}
	return jsonRegion(input.Message)
}

// jsonRegion returns the first balanced {...} or [...] span, or "".
func jsonRegion(message string) string {
	for _, open := range []byte{'{', '['} {
		start := strings.IndexByte(message, open)
		if start < 0 {
			continue
		}
		closeByte := byte('}')
		if open == '[' {
			closeByte = ']'
		}
		depth := 0
		for i := start; i < len(message); i++ {
			switch message[i] {
			case open:
				depth++
			case closeByte:
				depth--
				if depth == 0 {
					return message[start : i+1]
				}
			}
		}
	}
	return ""
}

func summarizeValue(parsed any) string {
	switch v := parsed.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		shown := keys
		if len(shown) > 8 {
			shown = shown[:8]
		}
		return fmt.Sprintf("An object with %d keys: %s.", len(keys), strings.Join(shown, ", "))
	case []any:
		if stats, ok := numericStats(v); ok {
			return fmt.Sprintf("A numeric array of %d values: sum %s, min %s, max %s, mean %s.",
				stats.count, trimFloat(stats.sum), trimFloat(stats.min), trimFloat(stats.max), trimFloat(stats.mean))
		}
		return fmt.Sprintf("An array of %d elements.", len(v))
	case string:
		return fmt.Sprintf("A string of %d characters.", len(v))
	case float64:
		return fmt.Sprintf("A single number: %s.", trimFloat(v))
	case bool:
		return fmt.Sprintf("A single boolean: %t.", v)
	case nil:
		return "A null value."
	}
	return "An unrecognized value."
}

type arrayStats struct {
	count               int
	sum, min, max, mean float64
}

func numericStats(values []any) (arrayStats, bool) {
	if len(values) == 0 {
		return arrayStats{}, false
	}
	stats := arrayStats{count: len(values)}
	for i, value := range values {
		n, ok := value.(float64)
		if !ok {
			return arrayStats{}, false
		}
		if i == 0 {
			stats.min, stats.max = n, n
		}
		stats.sum += n
		if n < stats.min {
			stats.min = n
		}
		if n > stats.max {
			stats.max = n
		}
	}
	stats.mean = stats.sum / float64(stats.count)
	return stats, true
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

var _ Agent = (*DataProcessor)(nil)
