package sequence

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
	"golang.org/x/sync/errgroup"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/template"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// maxBackoff caps exponential retry sleeps.
const maxBackoff = 30 * time.Second

// Completer is the slice of the provider cascade mcp steps need: one
// completion pinned to one provider.
type Completer interface {
	Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error)
}

// Executor runs configured sequences against the tool registry and
// the provider cascade. One executor serves every sequence; breakers
// are created lazily, keyed by sequence id.
type Executor struct {
	tools  *tools.Registry
	llm    Completer
	events *logger.EventLog

	mu       sync.Mutex
	breakers map[string]*runBreaker
}

func NewExecutor(registry *tools.Registry, llm Completer, events *logger.EventLog) *Executor {
	return &Executor{
		tools:    registry,
		llm:      llm,
		events:   events,
		breakers: make(map[string]*runBreaker),
	}
}

// Breakers lists every sequence breaker created so far, for health
// reporting.
func (e *Executor) Breakers() []BreakerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snaps := make([]BreakerSnapshot, 0, len(e.breakers))
	for _, b := range e.breakers {
		snaps = append(snaps, b.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Sequence < snaps[j].Sequence })
	return snaps
}

func (e *Executor) breaker(cfg *config.SequenceConfig) *runBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[cfg.ID]
	if !ok {
		b = newRunBreaker(cfg.ID, cfg.CircuitBreaker)
		e.breakers[cfg.ID] = b
	}
	return b
}

// Run executes one sequence to completion or to its first stopping
// failure. caller is the agent driving the run, nil when the
// orchestrator triggers one directly; its tool whitelist gates every
// tool step. The Outcome carries every step record even when Run also
// returns an error.
func (e *Executor) Run(ctx context.Context, cfg *config.SequenceConfig, caller *config.AgentConfig, traceID string, input map[string]any) (*Outcome, error) {
	if cfg == nil {
		return nil, errors.New("nil sequence config")
	}
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("sequence %q is disabled", cfg.ID)
	}

	breaker := e.breaker(cfg)
	if !breaker.allow() {
		e.events.Warn(logger.CategoryCircuit, traceID,
			fmt.Sprintf("sequence %s rejected: circuit open", cfg.ID), nil)
		return nil, &CircuitOpenError{Sequence: cfg.ID}
	}

	tracer := observability.GetTracer("stentor.sequence")
	ctx, span := tracer.Start(ctx, observability.SpanSequenceRun,
		trace.WithAttributes(attribute.String(observability.AttrSequenceID, cfg.ID)))
	defer span.End()

	start := time.Now()
	outcome, err := e.walk(ctx, cfg, caller, traceID, input)
	duration := time.Since(start)
	outcome.DurationMS = duration.Milliseconds()

	breaker.record(err == nil)
	e.events.Metrics().Record("sequence", duration, err == nil)
	if outcome.StoppedAt > 0 {
		span.SetAttributes(attribute.Int(observability.AttrStepOrder, outcome.StoppedAt))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.events.Error(logger.CategoryTool, traceID,
			fmt.Sprintf("sequence %s failed: %v", cfg.ID, err),
			map[string]any{"sequence": cfg.ID, "steps": len(outcome.Steps)})
		return outcome, err
	}

	span.SetStatus(codes.Ok, "")
	e.events.Success(logger.CategoryTool, traceID,
		fmt.Sprintf("sequence %s: %s", cfg.ID, outcome.Summary()),
		map[string]any{"sequence": cfg.ID, "duration_ms": outcome.DurationMS})
	return outcome, nil
}

// walk advances through the ordered steps, collecting contiguous
// parallel groups into one concurrent unit. Completed steps seed the
// template context under their order.
func (e *Executor) walk(ctx context.Context, cfg *config.SequenceConfig, caller *config.AgentConfig, traceID string, input map[string]any) (*Outcome, error) {
	outcome := &Outcome{Sequence: cfg.ID}
	data := template.Data{Input: input, Steps: make(map[int]any)}
	steps := cfg.StepsInOrder()

	for i := 0; i < len(steps); {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		j := i + 1
		if steps[i].Parallel != "" {
			for j < len(steps) && steps[j].Parallel == steps[i].Parallel {
				j++
			}
		}

		var verdicts []stepVerdict
		if j-i == 1 {
			verdicts = []stepVerdict{e.runStep(ctx, cfg, caller, traceID, steps[i], data)}
		} else {
			verdicts = e.runGroup(ctx, cfg, caller, traceID, steps[i:j], data)
		}

		var stopAt int
		var stopErr error
		for _, v := range verdicts {
			outcome.Steps = append(outcome.Steps, v.result)
			if !v.result.Skipped && !v.result.Failed {
				data.Steps[v.result.Order] = v.result.Output
			}
			if v.stop && (stopAt == 0 || v.result.Order < stopAt) {
				stopAt, stopErr = v.result.Order, v.err
			}
		}
		if stopAt != 0 {
			outcome.StoppedAt = stopAt
			return outcome, stopErr
		}
		i = j
	}
	return outcome, nil
}

// stepVerdict is one step's record plus its effect on the walk.
type stepVerdict struct {
	result StepResult
	stop   bool
	err    error
}

func (e *Executor) runStep(ctx context.Context, cfg *config.SequenceConfig, caller *config.AgentConfig, traceID string, step *config.StepConfig, data template.Data) stepVerdict {
	res := StepResult{
		Order:  step.Order,
		Kind:   stepKind(step),
		Target: stepTarget(step),
		Action: step.Action,
	}

	start := time.Now()
	run := e.attempt(ctx, cfg, caller, traceID, step, data)
	res.DurationMS = time.Since(start).Milliseconds()
	res.Attempts = run.attempts
	res.Fallback = run.fallback

	if run.err != nil {
		res.Failed = true
		res.Error = run.err.Error()
		switch step.OnError {
		case config.OnErrorContinue:
			return stepVerdict{result: res}
		case config.OnErrorLogWarning:
			e.events.Warn(logger.CategoryTool, traceID,
				fmt.Sprintf("sequence %s: step %d (%s) failed, continuing", cfg.ID, step.Order, res.Target),
				map[string]any{"error": run.err.Error(), "attempts": run.attempts})
			return stepVerdict{result: res}
		default:
			// stop, and fallback whose fallback also failed
			return stepVerdict{result: res, stop: true, err: &StepError{
				Sequence: cfg.ID,
				Order:    step.Order,
				Target:   res.Target,
				Err:      run.err,
			}}
		}
	}

	res.Output = run.output
	res.Text = run.text
	e.events.Debug(logger.CategoryTool, traceID,
		fmt.Sprintf("sequence %s: step %d (%s) ok", cfg.ID, step.Order, res.Target),
		map[string]any{"attempts": run.attempts, "duration_ms": res.DurationMS})

	switch step.OnSuccess {
	case config.OnSuccessStop:
		return stepVerdict{result: res, stop: true}
	case config.OnSuccessSkip:
		res.Skipped = true
		return stepVerdict{result: res}
	default:
		return stepVerdict{result: res}
	}
}

// runGroup executes a contiguous parallel group. Members read the
// same frozen context; their slots land only after the group joins,
// so group members cannot reference one another.
func (e *Executor) runGroup(ctx context.Context, cfg *config.SequenceConfig, caller *config.AgentConfig, traceID string, group []*config.StepConfig, data template.Data) []stepVerdict {
	verdicts := make([]stepVerdict, len(group))
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range group {
		i, step := i, step
		g.Go(func() error {
			verdicts[i] = e.runStep(gctx, cfg, caller, traceID, step, data)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// stepRun is what one step's attempt chain produced.
type stepRun struct {
	output   any
	text     string
	attempts int
	fallback string
	err      error
}

// attempt resolves the step's params once, then dispatches with the
// retry budget the sequence allows. When every attempt failed and the
// step's policy is fallback, the step is re-issued once against the
// fallback provider.
func (e *Executor) attempt(ctx context.Context, cfg *config.SequenceConfig, caller *config.AgentConfig, traceID string, step *config.StepConfig, data template.Data) stepRun {
	params, err := resolveParams(step, data)
	if err != nil {
		return stepRun{err: err}
	}

	var run stepRun
	budget := retryBudget(cfg, step)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, cfg.Retry, attempt); err != nil {
				run.err = err
				return run
			}
		}
		run.attempts++
		output, text, err := e.dispatch(ctx, caller, traceID, step, params, step.MCPID)
		if err == nil {
			run.output, run.text = output, text
			return run
		}
		run.err = err
		if attempt >= budget || !retryable(err) {
			break
		}
		e.events.Debug(logger.CategoryTool, traceID,
			fmt.Sprintf("sequence %s: step %d attempt %d failed, retrying", cfg.ID, step.Order, run.attempts),
			map[string]any{"error": err.Error()})
	}

	if step.OnError == config.OnErrorFallback && step.FallbackMCPID != "" {
		output, text, err := e.dispatch(ctx, caller, traceID, step, params, step.FallbackMCPID)
		run.attempts++
		if err == nil {
			run.output, run.text, run.fallback, run.err = output, text, step.FallbackMCPID, nil
			return run
		}
		run.err = fmt.Errorf("%v; fallback %s: %w", run.err, step.FallbackMCPID, err)
	}
	return run
}

// dispatch executes one attempt. Tool steps go through the registry
// with the caller's whitelist; mcp steps complete the prompt param
// against the named provider.
func (e *Executor) dispatch(ctx context.Context, caller *config.AgentConfig, traceID string, step *config.StepConfig, params map[string]any, providerID string) (any, string, error) {
	if step.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	if step.ToolID != "" {
		result, err := e.tools.ExecuteForAgent(ctx, caller, step.ToolID, step.Action, params)
		if err != nil {
			return nil, "", err
		}
		return result.Output, result.Text, nil
	}

	prompt, _ := params["prompt"].(string)
	if prompt == "" {
		return nil, "", fmt.Errorf("mcp step %d needs a string prompt param", step.Order)
	}
	req := cascade.Request{
		Messages: []llms.Message{{Role: llms.RoleUser, Content: prompt}},
		Provider: providerID,
		TraceID:  traceID,
	}
	if system, _ := params["system"].(string); system != "" {
		req.Messages = append([]llms.Message{{Role: llms.RoleSystem, Content: system}}, req.Messages...)
	}
	res, err := e.llm.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{
		"text":     res.Text,
		"provider": res.ProviderID,
		"model":    res.ModelID,
	}, res.Text, nil
}

// resolveParams renders the step's parameter templates against the
// current context. Configs loaded through Validate arrive compiled;
// ad-hoc steps compile here.
func resolveParams(step *config.StepConfig, data template.Data) (map[string]any, error) {
	compiled := step.CompiledParams()
	if compiled == nil {
		c, err := template.CompileMap(step.Params)
		if err != nil {
			return nil, err
		}
		compiled = c
	}
	return compiled.EvalMap(data)
}

// retryBudget is how many re-attempts a failing step gets before its
// on_error policy applies.
func retryBudget(cfg *config.SequenceConfig, step *config.StepConfig) int {
	switch {
	case cfg.ErrorStrategy == config.StrategyRetryAll:
		return cfg.Retry.MaxRetries
	case cfg.Retry.Enabled && (step.OnError == config.OnErrorStop || step.OnError == config.OnErrorLogWarning):
		return cfg.Retry.MaxRetries
	default:
		return 0
	}
}

// retryable filters errors another attempt cannot fix: cancellation,
// schema violations, constraint and permission denials.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var validation *tools.ValidationError
	var constraint *tools.ConstraintError
	var denied *tools.PermissionDeniedError
	if errors.As(err, &validation) || errors.As(err, &constraint) || errors.As(err, &denied) {
		return false
	}
	return true
}

// backoff sleeps before retry attempt n (1-based), honoring ctx
// cancellation.
func backoff(ctx context.Context, retry config.RetryConfig, attempt int) error {
	delay := time.Duration(retry.BackoffMS) * time.Millisecond
	if retry.Exponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxBackoff {
				break
			}
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stepKind(step *config.StepConfig) string {
	if step.MCPID != "" {
		return KindMCP
	}
	return KindTool
}

func stepTarget(step *config.StepConfig) string {
	if step.MCPID != "" {
		return step.MCPID
	}
	return step.ToolID
}
