package config

import (
	"fmt"
	"sort"

	"github.com/stentorlabs/stentor/pkg/template"
)

// Step outcome policies.
const (
	OnSuccessContinue = "continue"
	OnSuccessStop     = "stop"
	OnSuccessSkip     = "skip"

	OnErrorContinue   = "continue"
	OnErrorStop       = "stop"
	OnErrorLogWarning = "log_warning"
	OnErrorFallback   = "fallback"
)

// Sequence error strategies.
const (
	StrategyFailFast        = "fail_fast"
	StrategyContinueOnError = "continue_on_error"
	StrategyRetryAll        = "retry_all"
)

// SequenceConfig is a named, ordered chain of tool and provider steps.
type SequenceConfig struct {
	// ID is the unique sequence id.
	ID string `yaml:"id" json:"id" jsonschema:"title=ID,description=Unique sequence id"`

	// Description shows up in introspection listings.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description,description=Human readable summary"`

	// Enabled removes the sequence from execution when false.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Available for execution,default=true"`

	// Steps run in ascending order.
	Steps []StepConfig `yaml:"steps" json:"steps" jsonschema:"title=Steps,description=Ordered steps"`

	// ErrorStrategy is the sequence-wide default when a step has no
	// on_error of its own.
	ErrorStrategy string `yaml:"error_strategy,omitempty" json:"error_strategy,omitempty" jsonschema:"title=Error Strategy,description=Default failure handling,enum=fail_fast,enum=continue_on_error,enum=retry_all,default=fail_fast"`

	// Retry controls re-attempts of failed steps.
	Retry RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" jsonschema:"title=Retry,description=Step retry settings"`

	// CircuitBreaker short-circuits a sequence that keeps failing.
	CircuitBreaker SequenceBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty" jsonschema:"title=Circuit Breaker,description=Repeated-failure protection"`
}

// StepConfig is one step of a sequence. Exactly one of ToolID and
// MCPID must be set: ToolID executes a registered tool, MCPID pins a
// completion call to one provider.
type StepConfig struct {
	// Order positions the step; orders are unique within a sequence.
	Order int `yaml:"order" json:"order" jsonschema:"title=Order,description=Execution position (1-based)"`

	// ToolID names the tool to execute.
	ToolID string `yaml:"tool_id,omitempty" json:"tool_id,omitempty" jsonschema:"title=Tool ID,description=Tool to execute"`

	// MCPID names the provider to call instead of a tool.
	MCPID string `yaml:"mcp_id,omitempty" json:"mcp_id,omitempty" jsonschema:"title=MCP ID,description=Provider to call"`

	// Action selects a named tool operation.
	Action string `yaml:"action,omitempty" json:"action,omitempty" jsonschema:"title=Action,description=Tool action name"`

	// Params are the step inputs. String values may hold ${input.x}
	// and ${stepN.path} placeholders, resolved at execution.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty" jsonschema:"title=Params,description=Step inputs (templated)"`

	// OnSuccess decides what happens after the step succeeds.
	OnSuccess string `yaml:"on_success,omitempty" json:"on_success,omitempty" jsonschema:"title=On Success,description=Post-success policy,enum=continue,enum=stop,enum=skip,default=continue"`

	// OnError decides what happens after the step fails.
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty" jsonschema:"title=On Error,description=Post-failure policy,enum=continue,enum=stop,enum=log_warning,enum=fallback"`

	// FallbackMCPID is the provider re-tried by the fallback policy.
	FallbackMCPID string `yaml:"fallback_mcp_id,omitempty" json:"fallback_mcp_id,omitempty" jsonschema:"title=Fallback MCP ID,description=Provider used by the fallback policy"`

	// Parallel groups contiguous steps for concurrent execution.
	// Steps sharing a group name run together; empty means sequential.
	Parallel string `yaml:"parallel,omitempty" json:"parallel,omitempty" jsonschema:"title=Parallel,description=Concurrent group name"`

	// TimeoutMS bounds the step; zero uses the tool constraint or the
	// 30 second default.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" jsonschema:"title=Timeout,description=Per-step timeout in milliseconds"`

	compiled *template.MapTemplate
}

// RetryConfig controls step re-attempts.
type RetryConfig struct {
	// Enabled turns retries on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Retry failed steps,default=false"`

	// MaxRetries per step, beyond the first attempt.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,description=Re-attempts per step,default=2"`

	// BackoffMS is the sleep before a retry.
	BackoffMS int `yaml:"backoff_ms,omitempty" json:"backoff_ms,omitempty" jsonschema:"title=Backoff,description=Sleep before retry in milliseconds,default=500"`

	// Exponential doubles the backoff per attempt, capped at 30 s.
	Exponential bool `yaml:"exponential,omitempty" json:"exponential,omitempty" jsonschema:"title=Exponential,description=Double backoff per attempt,default=false"`
}

// SequenceBreakerConfig short-circuits sequences that keep failing.
type SequenceBreakerConfig struct {
	// Enabled turns the breaker on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Protect the sequence,default=false"`

	// FailureThreshold is failed runs within the window before opening.
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty" jsonschema:"title=Failure Threshold,description=Failed runs before opening,default=3"`

	// WindowMS is the sliding window the failures are counted in.
	WindowMS int `yaml:"window_ms,omitempty" json:"window_ms,omitempty" jsonschema:"title=Window,description=Failure counting window in milliseconds,default=60000"`

	// OpenTimeoutMS is how long runs are rejected once open.
	OpenTimeoutMS int `yaml:"open_timeout_ms,omitempty" json:"open_timeout_ms,omitempty" jsonschema:"title=Open Timeout,description=Milliseconds runs stay rejected,default=30000"`
}

// SetDefaults applies default values.
func (c *SequenceConfig) SetDefaults() {
	if c.ErrorStrategy == "" {
		c.ErrorStrategy = StrategyFailFast
	}
	c.Retry.SetDefaults()
	c.CircuitBreaker.SetDefaults()
	for i := range c.Steps {
		if c.Steps[i].OnSuccess == "" {
			c.Steps[i].OnSuccess = OnSuccessContinue
		}
		if c.Steps[i].OnError == "" {
			switch c.ErrorStrategy {
			case StrategyContinueOnError:
				c.Steps[i].OnError = OnErrorContinue
			default:
				c.Steps[i].OnError = OnErrorStop
			}
		}
	}
}

// SetDefaults applies default values.
func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 500
	}
}

// SetDefaults applies default values.
func (c *SequenceBreakerConfig) SetDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.WindowMS <= 0 {
		c.WindowMS = 60000
	}
	if c.OpenTimeoutMS <= 0 {
		c.OpenTimeoutMS = 30000
	}
}

// Validate checks field values and compiles every step's parameter
// templates; a malformed placeholder fails the load here, not the
// first execution. Tool and provider references are validated at
// Config level.
func (c *SequenceConfig) Validate() error {
	if c.ID == "" {
		return &SchemaError{Path: "tool_sequences", Reason: "every sequence needs an id"}
	}
	path := "tool_sequences." + c.ID
	if len(c.Steps) == 0 {
		return &SchemaError{Path: path + ".steps", Reason: "a sequence needs at least one step"}
	}
	switch c.ErrorStrategy {
	case StrategyFailFast, StrategyContinueOnError, StrategyRetryAll:
		// valid
	default:
		return &SchemaError{Path: path + ".error_strategy", Reason: "must be fail_fast, continue_on_error, or retry_all"}
	}

	seen := make(map[int]bool, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		spath := fmt.Sprintf("%s.steps[%d]", path, i)
		if step.Order < 1 {
			return &SchemaError{Path: spath + ".order", Reason: "order starts at 1"}
		}
		if seen[step.Order] {
			return &SchemaError{Path: spath + ".order", Reason: fmt.Sprintf("order %d appears twice", step.Order)}
		}
		seen[step.Order] = true

		if (step.ToolID == "") == (step.MCPID == "") {
			return &SchemaError{Path: spath, Reason: "exactly one of tool_id and mcp_id is required"}
		}
		switch step.OnSuccess {
		case OnSuccessContinue, OnSuccessStop, OnSuccessSkip:
			// valid
		default:
			return &SchemaError{Path: spath + ".on_success", Reason: "must be continue, stop, or skip"}
		}
		switch step.OnError {
		case OnErrorContinue, OnErrorStop, OnErrorLogWarning, OnErrorFallback:
			// valid
		default:
			return &SchemaError{Path: spath + ".on_error", Reason: "must be continue, stop, log_warning, or fallback"}
		}
		if step.OnError == OnErrorFallback {
			if step.MCPID == "" {
				return &SchemaError{Path: spath + ".on_error", Reason: "fallback applies to mcp steps only"}
			}
			if step.FallbackMCPID == "" {
				return &SchemaError{Path: spath + ".fallback_mcp_id", Reason: "the fallback policy needs a provider id"}
			}
			if step.FallbackMCPID == step.MCPID {
				return &SchemaError{Path: spath + ".fallback_mcp_id", Reason: "fallback must name a different provider"}
			}
		}

		compiled, err := template.CompileMap(step.Params)
		if err != nil {
			return &SchemaError{Path: spath + ".params", Reason: err.Error()}
		}
		step.compiled = compiled
	}

	// Parallel groups must be contiguous in execution order.
	ordered := make([]*StepConfig, 0, len(c.Steps))
	for i := range c.Steps {
		ordered = append(ordered, &c.Steps[i])
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	closed := make(map[string]bool)
	var current string
	for _, step := range ordered {
		if step.Parallel != current && current != "" {
			closed[current] = true
		}
		if step.Parallel != "" && closed[step.Parallel] {
			return &SchemaError{
				Path:   path,
				Reason: fmt.Sprintf("parallel group %q is split by other steps", step.Parallel),
			}
		}
		current = step.Parallel
	}
	return nil
}

// IsEnabled reports whether the sequence may execute.
func (c *SequenceConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

// CompiledParams returns the step's parameter templates, compiled by
// Validate. Nil until the sequence has been validated.
func (s *StepConfig) CompiledParams() *template.MapTemplate {
	return s.compiled
}

// StepsInOrder returns pointers to the steps sorted by Order.
func (c *SequenceConfig) StepsInOrder() []*StepConfig {
	out := make([]*StepConfig, 0, len(c.Steps))
	for i := range c.Steps {
		out = append(out, &c.Steps[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
