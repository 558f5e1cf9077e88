package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/registry"
)

// Registry holds the registered tools and runs every execution:
// parameter validation, the per-call deadline, metrics and the span
// all live here so individual tools stay small.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// Builtins returns fresh instances of every built-in tool.
func Builtins() []Tool {
	return []Tool{
		NewCalculator(),
		NewFileReader(),
		NewJSONParser(),
		NewTextTransformer(),
	}
}

// LoadFromConfig registers the built-ins and applies config overrides.
// A config entry matching a built-in id adjusts its description,
// constraints and enabled state; an entry with no implementation is
// recorded as a load failure and skipped.
func (r *Registry) LoadFromConfig(cfgs []*config.ToolConfig) error {
	for _, tool := range Builtins() {
		if err := r.Register(tool.ID(), tool); err != nil {
			return fmt.Errorf("registering tool %q: %w", tool.ID(), err)
		}
	}

	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		tool, exists := r.GetAny(cfg.ID)
		if !exists {
			r.RecordFailure(cfg.ID, fmt.Errorf("no implementation for tool %q", cfg.ID))
			continue
		}

		desc := tool.Descriptor()
		if cfg.Description != "" {
			desc.Description = cfg.Description
		}
		if cfg.Constraints.MaxExecutionTimeMS > 0 {
			desc.Constraints.MaxExecutionTimeMS = cfg.Constraints.MaxExecutionTimeMS
		}
		desc.Constraints.NoFileSystem = desc.Constraints.NoFileSystem || cfg.Constraints.NoFileSystem
		desc.Constraints.NoNetwork = desc.Constraints.NoNetwork || cfg.Constraints.NoNetwork
		if len(cfg.Constraints.AllowedPaths) > 0 {
			desc.Constraints.AllowedPaths = cfg.Constraints.AllowedPaths
		}
		if len(cfg.Constraints.AllowedExtensions) > 0 {
			desc.Constraints.AllowedExtensions = cfg.Constraints.AllowedExtensions
		}

		if !cfg.IsEnabled() {
			if err := r.Disable(cfg.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetTool resolves an enabled tool by id.
func (r *Registry) GetTool(id string) (Tool, error) {
	tool, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("tool %q not found", id)
	}
	return tool, nil
}

// Execute validates the call against the tool's schema and runs it
// under the tool's execution deadline.
func (r *Registry) Execute(ctx context.Context, toolID, action string, params map[string]any) (*Result, error) {
	tool, err := r.GetTool(toolID)
	if err != nil {
		return nil, err
	}
	desc := tool.Descriptor()

	resolved, err := resolveParams(desc, action, params)
	if err != nil {
		return nil, err
	}

	tracer := observability.GetTracer("stentor.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, toolID),
			attribute.String(observability.AttrToolAction, action),
		),
	)
	defer span.End()

	if ms := desc.Constraints.MaxExecutionTimeMS; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Execute(ctx, action, resolved)
	duration := time.Since(start)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, toolID, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Tool = toolID
	result.Action = action
	result.DurationMS = duration.Milliseconds()
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ExecuteForAgent is Execute gated by the agent's allowed_tools. The
// check happens here so no caller can reach a tool around it.
func (r *Registry) ExecuteForAgent(ctx context.Context, agent *config.AgentConfig, toolID, action string, params map[string]any) (*Result, error) {
	if agent != nil && !agentMayUse(agent.AllowedTools, toolID) {
		return nil, &PermissionDeniedError{Agent: agent.ID, Target: "tool " + toolID}
	}
	return r.Execute(ctx, toolID, action, params)
}

// agentMayUse applies the whitelist semantics: empty means all.
func agentMayUse(allowed []string, id string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}

// resolveParams checks a call against the descriptor: the action must
// exist, required inputs must be present, defaults fill gaps, and
// values must fit their declared type, enum and bounds. The input map
// is not mutated.
func resolveParams(desc *config.ToolConfig, action string, params map[string]any) (map[string]any, error) {
	accepted := desc.Parameters
	if len(desc.Actions) > 0 {
		act, ok := desc.Actions[action]
		if !ok {
			return nil, &ValidationError{Tool: desc.ID, Reason: fmt.Sprintf("unknown action %q", action)}
		}
		if len(act.Parameters) > 0 {
			accepted = make(map[string]config.ToolParameterConfig, len(act.Parameters))
			for _, name := range act.Parameters {
				accepted[name] = desc.Parameters[name]
			}
		}
	}

	resolved := make(map[string]any, len(accepted))
	for name, value := range params {
		schema, ok := accepted[name]
		if !ok {
			return nil, &ValidationError{Tool: desc.ID, Param: name, Reason: "is not accepted"}
		}
		coerced, err := coerceValue(desc.ID, name, schema, value)
		if err != nil {
			return nil, err
		}
		resolved[name] = coerced
	}

	for name, schema := range accepted {
		if _, present := resolved[name]; present {
			continue
		}
		if schema.Default != nil {
			resolved[name] = schema.Default
			continue
		}
		if schema.Required {
			return nil, &ValidationError{Tool: desc.ID, Param: name, Reason: "is required"}
		}
	}
	return resolved, nil
}

// coerceValue checks one value against its schema. Numbers arrive as
// float64 from JSON and as int from Go callers; both are accepted.
func coerceValue(tool, name string, schema config.ToolParameterConfig, value any) (any, error) {
	fail := func(reason string) (any, error) {
		return nil, &ValidationError{Tool: tool, Param: name, Reason: reason}
	}

	switch schema.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fail("must be a string")
		}
		if len(schema.Enum) > 0 {
			for _, allowed := range schema.Enum {
				if s == allowed {
					return s, nil
				}
			}
			return fail(fmt.Sprintf("must be one of %v", schema.Enum))
		}
		return s, nil

	case "number", "integer":
		f, ok := toFloat(value)
		if !ok {
			return fail("must be a number")
		}
		if schema.Type == "integer" && f != float64(int64(f)) {
			return fail("must be an integer")
		}
		if schema.Min != nil && f < *schema.Min {
			return fail(fmt.Sprintf("must be at least %v", *schema.Min))
		}
		if schema.Max != nil && f > *schema.Max {
			return fail(fmt.Sprintf("must be at most %v", *schema.Max))
		}
		return f, nil

	case "boolean":
		b, ok := value.(bool)
		if !ok {
			return fail("must be a boolean")
		}
		return b, nil

	case "object":
		m, ok := value.(map[string]any)
		if !ok {
			return fail("must be an object")
		}
		return m, nil

	case "array":
		a, ok := value.([]any)
		if !ok {
			return fail("must be an array")
		}
		return a, nil
	}
	return value, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
