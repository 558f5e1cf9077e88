// Package agents implements the domain agents the decision engine can
// dispatch to: a factory registry keyed by class, lifecycle hooks
// around every invocation, per-agent rolling metrics, and the three
// built-in agents the seed routing rules target.
package agents

import (
	"context"
	"fmt"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// Input carries one invocation into an agent. Params holds whatever
// the decision engine extracted from the message.
type Input struct {
	Message   string
	SessionID string
	TraceID   string
	Params    map[string]any
}

// Output is what an agent hands back for formatting.
type Output struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Services is the runtime surface an agent may touch. Tool and
// subagent calls are bound to the calling agent, so the permission
// whitelists apply no matter which agent holds the value.
type Services interface {
	// ExecuteTool runs a tool as the bound agent, subject to its
	// allowed_tools whitelist.
	ExecuteTool(ctx context.Context, toolID, action string, params map[string]any) (*tools.Result, error)

	// Complete sends a completion request through the provider cascade.
	Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error)

	// RunSequence executes a named tool sequence and returns its
	// rendered outcome.
	RunSequence(ctx context.Context, name string, params map[string]any) (string, error)

	// Delegate invokes another agent as a subagent, subject to the
	// bound agent's allowed_subagents whitelist.
	Delegate(ctx context.Context, agentID string, input Input) (*Output, error)
}

// Agent is the execution contract. Implementations are constructed
// once at load and live until shutdown; the registry drives the
// lifecycle hooks around each invocation.
type Agent interface {
	ID() string
	Descriptor() *config.AgentConfig

	// OnInit runs before the first invocation. The registry guarantees
	// it is called once per process; a failed init is retried on the
	// next invocation.
	OnInit(ctx context.Context) error

	// BeforeExecute may inspect or adjust the input. An error fails
	// the invocation without running Execute.
	BeforeExecute(ctx context.Context, input *Input) error

	Execute(ctx context.Context, input Input, svc Services) (*Output, error)

	// AfterExecute observes the outcome. It runs even when Execute
	// failed.
	AfterExecute(ctx context.Context, output *Output, err error)

	// OnDestroy runs at shutdown.
	OnDestroy() error
}

// Metrics is one agent's rolling invocation stats.
type Metrics struct {
	Total             int64   `json:"total"`
	Successful        int64   `json:"successful"`
	Failed            int64   `json:"failed"`
	AverageDurationMS float64 `json:"average_duration_ms"`
	LastDurationMS    int64   `json:"last_duration_ms"`
}

// InvokeError wraps a failure in an agent's lifecycle or execution.
type InvokeError struct {
	Agent string
	Stage string
	Err   error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("agent %s (%s): %v", e.Agent, e.Stage, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// BaseAgent carries the descriptor and no-op lifecycle hooks so
// implementations only write what they need.
type BaseAgent struct {
	cfg *config.AgentConfig
}

func NewBaseAgent(cfg *config.AgentConfig) BaseAgent {
	return BaseAgent{cfg: cfg}
}

func (a *BaseAgent) ID() string                      { return a.cfg.ID }
func (a *BaseAgent) Descriptor() *config.AgentConfig { return a.cfg }

func (a *BaseAgent) OnInit(ctx context.Context) error                  { return nil }
func (a *BaseAgent) BeforeExecute(ctx context.Context, _ *Input) error { return nil }
func (a *BaseAgent) AfterExecute(ctx context.Context, _ *Output, _ error) {
}
func (a *BaseAgent) OnDestroy() error { return nil }
