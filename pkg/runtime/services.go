package runtime

import (
	"context"
	"fmt"

	"github.com/stentorlabs/stentor/pkg/agents"
	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// agentRunner adapts a snapshot to the orchestrator's agent dispatch.
// Each invocation gets services bound to the target agent, so the
// agent's own whitelists gate everything it touches.
type agentRunner struct {
	snap *snapshot
}

func (a *agentRunner) Invoke(ctx context.Context, id string, input agents.Input) (*agents.Output, error) {
	agent, err := a.snap.agents.GetAgent(id)
	if err != nil {
		return nil, err
	}
	return a.snap.agents.Invoke(ctx, id, input, a.snap.servicesFor(agent.Descriptor(), input.TraceID))
}

func (s *snapshot) servicesFor(caller *config.AgentConfig, traceID string) agents.Services {
	return &boundServices{snap: s, caller: caller, traceID: traceID}
}

// boundServices is the runtime surface one agent invocation may touch.
// The caller descriptor travels with the value, so permission checks
// hold no matter who ends up holding it.
type boundServices struct {
	snap    *snapshot
	caller  *config.AgentConfig
	traceID string
}

func (b *boundServices) ExecuteTool(ctx context.Context, toolID, action string, params map[string]any) (*tools.Result, error) {
	return b.snap.tools.ExecuteForAgent(ctx, b.caller, toolID, action, params)
}

// Complete routes the agent's own LLM calls through the cascade,
// applying the agent's provider locality preference.
func (b *boundServices) Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error) {
	if req.TraceID == "" {
		req.TraceID = b.traceID
	}
	if req.Prefer == "" && b.caller != nil {
		req.Prefer = b.caller.MCPPreference
	}
	return b.snap.casc.Complete(ctx, req)
}

func (b *boundServices) RunSequence(ctx context.Context, name string, params map[string]any) (string, error) {
	seqCfg, ok := b.snap.cfg.SequenceByID(name)
	if !ok {
		return "", fmt.Errorf("sequence %q not found", name)
	}
	outcome, err := b.snap.sequences.Run(ctx, seqCfg, b.caller, b.traceID, params)
	if err != nil {
		return "", err
	}
	if text := outcome.LastText(); text != "" {
		return text, nil
	}
	return outcome.Summary(), nil
}

// Delegate hands work to another agent. The subagent whitelist is
// enforced by the registry; the target runs with services bound to its
// own descriptor, not the caller's.
func (b *boundServices) Delegate(ctx context.Context, agentID string, input agents.Input) (*agents.Output, error) {
	target, err := b.snap.agents.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if input.TraceID == "" {
		input.TraceID = b.traceID
	}
	return b.snap.agents.InvokeForAgent(ctx, b.caller, agentID, input, b.snap.servicesFor(target.Descriptor(), input.TraceID))
}
