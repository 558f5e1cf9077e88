// Package tools implements the deterministic tool runtime: a typed
// execution contract, parameter validation against the configured
// schema, constraint enforcement, and the built-in tools the seed
// routing rules target.
package tools

import (
	"context"

	"github.com/stentorlabs/stentor/pkg/config"
)

// Result is one tool invocation's outcome. Output keeps the native
// value for templating and formatting; Text is the plain rendering.
type Result struct {
	Tool       string         `json:"tool"`
	Action     string         `json:"action,omitempty"`
	Output     any            `json:"output"`
	Text       string         `json:"text"`
	DurationMS int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Tool is the execution contract. Implementations hold no state
// between calls; schemas and constraints live on the descriptor.
type Tool interface {
	ID() string

	// Descriptor returns the schema the registry validates calls
	// against and introspection endpoints list.
	Descriptor() *config.ToolConfig

	// Execute runs one action with validated parameters. The registry
	// has already applied defaults, checked types, and bounded ctx by
	// the tool's max execution time.
	Execute(ctx context.Context, action string, params map[string]any) (*Result, error)
}
