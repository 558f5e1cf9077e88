package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/registry"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// Factory constructs an agent from its descriptor. Classes are bound
// explicitly at startup; there is no discovery by name.
type Factory func(cfg *config.AgentConfig) (Agent, error)

// Registry holds constructed agents and drives their lifecycle:
// OnInit once per process, BeforeExecute/AfterExecute around every
// invocation, rolling metrics, and the subagent permission gate.
type Registry struct {
	*registry.BaseRegistry[Agent]

	mu        sync.Mutex
	factories map[string]Factory
	states    map[string]*agentState
}

func NewRegistry() *Registry {
	r := &Registry{
		BaseRegistry: registry.NewBaseRegistry[Agent](),
		factories:    make(map[string]Factory),
		states:       make(map[string]*agentState),
	}
	r.factories["code_analyzer"] = func(cfg *config.AgentConfig) (Agent, error) { return NewCodeAnalyzer(cfg), nil }
	r.factories["data_processor"] = func(cfg *config.AgentConfig) (Agent, error) { return NewDataProcessor(cfg), nil }
	r.factories["task_manager"] = func(cfg *config.AgentConfig) (Agent, error) { return NewTaskManager(cfg), nil }
	return r
}

// RegisterFactory binds a class name to a constructor. Registering an
// existing class is an error so built-ins cannot be silently replaced.
func (r *Registry) RegisterFactory(class string, factory Factory) error {
	if class == "" {
		return fmt.Errorf("agent factory needs a class name")
	}
	if factory == nil {
		return fmt.Errorf("agent factory for %q is nil", class)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[class]; exists {
		return fmt.Errorf("agent class %q is already registered", class)
	}
	r.factories[class] = factory
	return nil
}

// Classes lists the registered factory classes, sorted.
func (r *Registry) Classes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	classes := make([]string, 0, len(r.factories))
	for class := range r.factories {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

func (r *Registry) factory(class string) (Factory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[class]
	return f, ok
}

// LoadFromConfig registers the built-in agents under their class names
// and then applies config entries. An entry whose id matches a
// built-in replaces it wholesale; an entry with an unknown class or a
// failing constructor is recorded as a load failure and skipped.
func (r *Registry) LoadFromConfig(cfgs []*config.AgentConfig) error {
	for _, class := range config.BuiltinAgentClasses {
		cfg := defaultAgentConfig(class)
		agent, err := r.construct(cfg)
		if err != nil {
			return fmt.Errorf("constructing built-in agent %q: %w", class, err)
		}
		if err := r.Register(class, agent); err != nil {
			return fmt.Errorf("registering built-in agent %q: %w", class, err)
		}
	}

	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		agent, err := r.construct(cfg)
		if err != nil {
			r.RecordFailure(cfg.ID, err)
			continue
		}
		if _, exists := r.GetAny(cfg.ID); exists {
			r.Remove(cfg.ID)
		}
		if err := r.Register(cfg.ID, agent); err != nil {
			return fmt.Errorf("registering agent %q: %w", cfg.ID, err)
		}
		if !cfg.IsEnabled() {
			if err := r.Disable(cfg.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) construct(cfg *config.AgentConfig) (Agent, error) {
	factory, ok := r.factory(cfg.Class)
	if !ok {
		return nil, fmt.Errorf("no factory for agent class %q", cfg.Class)
	}
	agent, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing agent %q: %w", cfg.ID, err)
	}
	return agent, nil
}

func defaultAgentConfig(class string) *config.AgentConfig {
	cfg := &config.AgentConfig{
		ID:    class,
		Class: class,
	}
	switch class {
	case "code_analyzer":
		cfg.Description = "Static checks over code snippets and files"
		cfg.Permissions.ReadFile = true
	case "data_processor":
		cfg.Description = "Validates and reshapes structured data"
	case "task_manager":
		cfg.Description = "Tracks scheduled tasks and reports their state"
	}
	cfg.SetDefaults()
	return cfg
}

// GetAgent resolves an enabled agent by id.
func (r *Registry) GetAgent(id string) (Agent, error) {
	agent, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	return agent, nil
}

// Invoke runs one agent invocation through the full lifecycle.
func (r *Registry) Invoke(ctx context.Context, id string, input Input, svc Services) (*Output, error) {
	agent, err := r.GetAgent(id)
	if err != nil {
		return nil, err
	}

	state := r.state(id)
	if err := state.ensureInit(ctx, agent); err != nil {
		return nil, &InvokeError{Agent: id, Stage: "init", Err: err}
	}

	tracer := observability.GetTracer("stentor.agents")
	ctx, span := tracer.Start(ctx, observability.SpanAgentCall,
		trace.WithAttributes(attribute.String(observability.AttrAgentID, id)),
	)
	defer span.End()

	start := time.Now()
	output, execErr := runHooked(ctx, agent, input, svc)
	duration := time.Since(start)

	state.record(duration, execErr == nil)
	observability.GetGlobalMetrics().RecordAgentCall(ctx, id, duration, execErr)

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		return nil, &InvokeError{Agent: id, Stage: "execute", Err: execErr}
	}
	span.SetStatus(codes.Ok, "")
	return output, nil
}

// InvokeForAgent is Invoke gated by the caller's allowed_subagents.
func (r *Registry) InvokeForAgent(ctx context.Context, caller *config.AgentConfig, id string, input Input, svc Services) (*Output, error) {
	if caller != nil {
		if !caller.MayCallSubagents() || !caller.SubagentAllowed(id) {
			return nil, &tools.PermissionDeniedError{Agent: caller.ID, Target: "agent " + id}
		}
	}
	return r.Invoke(ctx, id, input, svc)
}

func runHooked(ctx context.Context, agent Agent, input Input, svc Services) (*Output, error) {
	if err := agent.BeforeExecute(ctx, &input); err != nil {
		agent.AfterExecute(ctx, nil, err)
		return nil, err
	}
	output, err := agent.Execute(ctx, input, svc)
	agent.AfterExecute(ctx, output, err)
	return output, err
}

// MetricsFor returns the rolling metrics of one agent.
func (r *Registry) MetricsFor(id string) (Metrics, bool) {
	if _, exists := r.GetAny(id); !exists {
		return Metrics{}, false
	}
	return r.state(id).snapshot(), true
}

// Shutdown calls OnDestroy on every registered agent, enabled or not.
func (r *Registry) Shutdown() error {
	var errs []error
	for _, agent := range r.ListAll() {
		if err := agent.OnDestroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroying agent %q: %w", agent.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) state(id string) *agentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[id]
	if !ok {
		state = &agentState{}
		r.states[id] = state
	}
	return state
}

// agentState tracks init status and rolling metrics for one agent.
// A failed init stays uninitialized so the next invocation retries.
type agentState struct {
	mu          sync.Mutex
	initialized bool

	total      int64
	successful int64
	failed     int64
	sumMS      int64
	lastMS     int64
}

func (s *agentState) ensureInit(ctx context.Context, agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := agent.OnInit(ctx); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *agentState) record(duration time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if ok {
		s.successful++
	} else {
		s.failed++
	}
	ms := duration.Milliseconds()
	s.sumMS += ms
	s.lastMS = ms
}

func (s *agentState) snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{
		Total:          s.total,
		Successful:     s.successful,
		Failed:         s.failed,
		LastDurationMS: s.lastMS,
	}
	if s.total > 0 {
		m.AverageDurationMS = float64(s.sumMS) / float64(s.total)
	}
	return m
}
