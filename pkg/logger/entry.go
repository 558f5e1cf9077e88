package logger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is the severity of an event log entry. It is distinct from
// slog.Level because the event log carries success as a first-class level.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEntryLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseEntryLevel converts a string to an event log Level.
func ParseEntryLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "success":
		return LevelSuccess, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category classifies an event log entry. The set is closed; entries with an
// unknown category are coerced to CategorySystem on write.
type Category string

const (
	CategorySystem   Category = "system"
	CategoryConfig   Category = "config"
	CategoryDecision Category = "decision"
	CategoryLLM      Category = "llm"
	CategoryRAG      Category = "rag"
	CategoryAgent    Category = "agent"
	CategoryTool     Category = "tool"
	CategoryProvider Category = "provider"
	CategoryCircuit  Category = "circuit"
	CategoryRequest  Category = "request"
	CategoryResponse Category = "response"
)

var knownCategories = map[Category]bool{
	CategorySystem:   true,
	CategoryConfig:   true,
	CategoryDecision: true,
	CategoryLLM:      true,
	CategoryRAG:      true,
	CategoryAgent:    true,
	CategoryTool:     true,
	CategoryProvider: true,
	CategoryCircuit:  true,
	CategoryRequest:  true,
	CategoryResponse: true,
}

func (c Category) Valid() bool {
	return knownCategories[c]
}

// Categories returns the closed category set, in declaration order.
func Categories() []Category {
	return []Category{
		CategorySystem, CategoryConfig, CategoryDecision, CategoryLLM,
		CategoryRAG, CategoryAgent, CategoryTool, CategoryProvider,
		CategoryCircuit, CategoryRequest, CategoryResponse,
	}
}

// Entry is one record in the event log ring.
type Entry struct {
	TimestampMS int64          `json:"timestamp_ms"`
	Level       Level          `json:"level"`
	Category    Category       `json:"category"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
}
