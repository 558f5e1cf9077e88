package sequence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/template"
	"github.com/stentorlabs/stentor/pkg/tools"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls []cascade.Request
	fn    func(ctx context.Context, req cascade.Request) (*cascade.Result, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return &cascade.Result{
		Text:       "echo: " + req.Messages[len(req.Messages)-1].Content,
		ProviderID: req.Provider,
		ModelID:    "m1",
	}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietEvents() *logger.EventLog {
	return logger.NewEventLog(logger.Options{
		RingSize: 128,
		Console:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func newTestExecutor(t *testing.T, llm Completer) *Executor {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.LoadFromConfig(nil))
	return NewExecutor(reg, llm, quietEvents())
}

func finishSequence(t *testing.T, cfg *config.SequenceConfig) *config.SequenceConfig {
	t.Helper()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunChainsToolOutputs(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "math",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": "${input.x}", "b": 3}},
			{Order: 2, ToolID: "calculator", Action: "multiply", Params: map[string]any{"a": "${step1}", "b": 4}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", map[string]any{"x": 2})
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.StoppedAt)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, 5.0, outcome.Steps[0].Output)
	assert.Equal(t, 20.0, outcome.Steps[1].Output)
	assert.Equal(t, 1, outcome.Steps[0].Attempts)
	assert.Equal(t, "All 2 steps succeeded.", outcome.Summary())
	assert.Equal(t, "20", outcome.LastText())
}

func TestStopPolicyHaltsRun(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "halting",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 2, "b": 2}},
			{Order: 2, ToolID: "calculator", Action: "divide", Params: map[string]any{"a": 1, "b": 0}},
			{Order: 3, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "halting", stepErr.Sequence)
	assert.Equal(t, 2, stepErr.Order)
	var execErr *tools.ExecutionError
	assert.ErrorAs(t, err, &execErr)

	assert.Equal(t, 2, outcome.StoppedAt)
	require.Len(t, outcome.Steps, 2)
	assert.True(t, outcome.Steps[1].Failed)
	assert.Contains(t, outcome.Steps[1].Error, "division by zero")
	assert.Equal(t, "1 of 2 steps succeeded (1 failed); stopped at step 2.", outcome.Summary())
}

func TestContinuePolicyRecordsAndMovesOn(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "tolerant",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "divide", Params: map[string]any{"a": 1, "b": 0}, OnError: config.OnErrorContinue},
			{Order: 2, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 2}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.StoppedAt)
	require.Len(t, outcome.Steps, 2)
	assert.True(t, outcome.Steps[0].Failed)
	assert.Equal(t, 3.0, outcome.Steps[1].Output)
	assert.Equal(t, "1 of 2 steps succeeded (1 failed).", outcome.Summary())
}

func TestTemplateErrorRoutedToPolicy(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:    "dangling",
		Retry: config.RetryConfig{Enabled: true, BackoffMS: 1},
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "divide", Params: map[string]any{"a": 1, "b": 0}, OnError: config.OnErrorContinue},
			{Order: 2, ToolID: "calculator", Action: "add", Params: map[string]any{"a": "${step1}", "b": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)

	var evalErr *template.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Reason, "produced no output")

	// unresolvable params never reach the dispatcher, so no retries
	assert.Equal(t, 0, outcome.Steps[1].Attempts)
	assert.Equal(t, 2, outcome.StoppedAt)
}

func TestOnSuccessStopEndsEarly(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "short",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}, OnSuccess: config.OnSuccessStop},
			{Order: 2, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 2, "b": 2}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.StoppedAt)
	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, 2.0, outcome.Steps[0].Output)
	assert.Equal(t, "1 of 1 steps succeeded; stopped at step 1.", outcome.Summary())
}

func TestOnSuccessSkipWithholdsSlot(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "discreet",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 2, "b": 3}, OnSuccess: config.OnSuccessSkip},
			{Order: 2, ToolID: "calculator", Action: "add", Params: map[string]any{"a": "${step1}", "b": 1}, OnError: config.OnErrorContinue},
			{Order: 3, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	require.Len(t, outcome.Steps, 3)
	assert.True(t, outcome.Steps[0].Skipped)
	assert.Equal(t, 5.0, outcome.Steps[0].Output, "the record keeps the output for inspection")
	assert.True(t, outcome.Steps[1].Failed, "the withheld slot is unresolvable downstream")
	assert.Equal(t, 2.0, outcome.Steps[2].Output)
	assert.Equal(t, "2", outcome.LastText(), "a skipped step's text never becomes the answer")
	assert.Equal(t, "1 of 3 steps succeeded (1 failed, 1 skipped).", outcome.Summary())
}

func TestMCPStepCompletesPrompt(t *testing.T) {
	llm := &fakeCompleter{}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "explain",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 2, "b": 3}},
			{Order: 2, MCPID: "claude", Params: map[string]any{"prompt": "Explain ${step1}"}},
			{Order: 3, ToolID: "text_transformer", Action: "upper", Params: map[string]any{"text": "${step2.text}"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	require.Equal(t, 1, llm.callCount())
	assert.Equal(t, "claude", llm.calls[0].Provider)
	assert.Equal(t, "Explain 5", llm.calls[0].Messages[0].Content)
	assert.Equal(t, "t1", llm.calls[0].TraceID)

	require.Len(t, outcome.Steps, 3)
	assert.Equal(t, KindMCP, outcome.Steps[1].Kind)
	slot, ok := outcome.Steps[1].Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "claude", slot["provider"])
	assert.Equal(t, "ECHO: EXPLAIN 5", outcome.LastText())
}

func TestFallbackProviderRescuesStep(t *testing.T) {
	llm := &fakeCompleter{
		fn: func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
			if req.Provider == "primary" {
				return nil, errors.New("primary down")
			}
			return &cascade.Result{Text: "saved", ProviderID: req.Provider, ModelID: "m1"}, nil
		},
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "resilient",
		Steps: []config.StepConfig{
			{
				Order:         1,
				MCPID:         "primary",
				Params:        map[string]any{"prompt": "hi"},
				OnError:       config.OnErrorFallback,
				FallbackMCPID: "backup",
			},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, "backup", outcome.Steps[0].Fallback)
	assert.Equal(t, 2, outcome.Steps[0].Attempts)
	assert.Equal(t, "saved", outcome.Steps[0].Text)
	assert.Equal(t, 2, llm.callCount())
}

func TestFallbackFailureStopsRun(t *testing.T) {
	llm := &fakeCompleter{
		fn: func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
			return nil, errors.New(req.Provider + " down")
		},
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "doomed",
		Steps: []config.StepConfig{
			{
				Order:         1,
				MCPID:         "primary",
				Params:        map[string]any{"prompt": "hi"},
				OnError:       config.OnErrorFallback,
				FallbackMCPID: "backup",
			},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Contains(t, stepErr.Error(), "fallback backup")
	assert.Equal(t, 1, outcome.StoppedAt)
	assert.Equal(t, 2, outcome.Steps[0].Attempts)
}

func TestRetriesUntilSuccess(t *testing.T) {
	var failures int
	llm := &fakeCompleter{}
	llm.fn = func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
		if failures < 2 {
			failures++
			return nil, errors.New("flaky")
		}
		return &cascade.Result{Text: "finally", ProviderID: req.Provider, ModelID: "m1"}, nil
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:    "persistent",
		Retry: config.RetryConfig{Enabled: true, MaxRetries: 2, BackoffMS: 1},
		Steps: []config.StepConfig{
			{Order: 1, MCPID: "claude", Params: map[string]any{"prompt": "hi"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.Steps[0].Attempts)
	assert.Equal(t, "finally", outcome.Steps[0].Text)
	assert.Equal(t, 3, llm.callCount())
}

func TestRetryAllStrategyRetriesEveryStep(t *testing.T) {
	var failed bool
	llm := &fakeCompleter{}
	llm.fn = func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
		if !failed {
			failed = true
			return nil, errors.New("hiccup")
		}
		return &cascade.Result{Text: "ok", ProviderID: req.Provider, ModelID: "m1"}, nil
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:            "stubborn",
		ErrorStrategy: config.StrategyRetryAll,
		Retry:         config.RetryConfig{BackoffMS: 1},
		Steps: []config.StepConfig{
			{Order: 1, MCPID: "claude", Params: map[string]any{"prompt": "hi"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Steps[0].Attempts)
}

func TestDeterministicErrorsAreNotRetried(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:    "hopeless",
		Retry: config.RetryConfig{Enabled: true, MaxRetries: 3, BackoffMS: 1},
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)

	var validation *tools.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, 1, outcome.Steps[0].Attempts)
}

func TestCallerWhitelistGatesToolSteps(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	caller := &config.AgentConfig{ID: "restricted", AllowedTools: []string{"calculator"}}
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:    "offlimits",
		Retry: config.RetryConfig{Enabled: true, BackoffMS: 1},
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "text_transformer", Action: "upper", Params: map[string]any{"text": "hi"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, caller, "t1", nil)
	require.Error(t, err)

	var denied *tools.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "restricted", denied.Agent)
	assert.Equal(t, 1, outcome.Steps[0].Attempts)
}

func TestParallelGroupRunsConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	llm := &fakeCompleter{
		fn: func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return &cascade.Result{Text: req.Provider, ProviderID: req.Provider, ModelID: "m1"}, nil
		},
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "fanout",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
			{Order: 2, MCPID: "p1", Parallel: "fan", Params: map[string]any{"prompt": "left ${step1}"}},
			{Order: 3, MCPID: "p2", Parallel: "fan", Params: map[string]any{"prompt": "right ${step1}"}},
			{Order: 4, ToolID: "text_transformer", Action: "upper", Params: map[string]any{"text": "${step2.text} ${step3.text}"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, peak, "group members should overlap")
	require.Len(t, outcome.Steps, 4)
	assert.Equal(t, 2, outcome.Steps[1].Order)
	assert.Equal(t, 3, outcome.Steps[2].Order)
	assert.Equal(t, "P1 P2", outcome.LastText())
}

func TestParallelGroupStopUsesLowestOrder(t *testing.T) {
	llm := &fakeCompleter{
		fn: func(_ context.Context, req cascade.Request) (*cascade.Result, error) {
			if req.Provider == "bad" {
				return nil, errors.New("bad is down")
			}
			return &cascade.Result{Text: "fine", ProviderID: req.Provider, ModelID: "m1"}, nil
		},
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "mixed",
		Steps: []config.StepConfig{
			{Order: 1, MCPID: "bad", Parallel: "pair", Params: map[string]any{"prompt": "a"}},
			{Order: 2, MCPID: "good", Parallel: "pair", Params: map[string]any{"prompt": "b"}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Order)
	assert.Equal(t, 1, outcome.StoppedAt)
	require.Len(t, outcome.Steps, 2, "the healthy member still ran and is recorded")
	assert.Equal(t, "fine", outcome.Steps[1].Text)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "boom",
		CircuitBreaker: config.SequenceBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			WindowMS:         60000,
			OpenTimeoutMS:    30000,
		},
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "divide", Params: map[string]any{"a": 1, "b": 0}},
		},
	})

	_, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)
	_, err = exec.Run(context.Background(), cfg, nil, "t2", nil)
	require.Error(t, err)

	_, err = exec.Run(context.Background(), cfg, nil, "t3", nil)
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "boom", open.Sequence)

	snaps := exec.Breakers()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Open)
	require.NotNil(t, snaps[0].OpenedAt)

	exec.mu.Lock()
	breaker := exec.breakers["boom"]
	exec.mu.Unlock()
	breaker.mu.Lock()
	breaker.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	breaker.mu.Unlock()

	_, err = exec.Run(context.Background(), cfg, nil, "t4", nil)
	var stepErr *StepError
	assert.ErrorAs(t, err, &stepErr, "an expired breaker admits the run again")
}

func TestBreakerWindowPrunesOldFailures(t *testing.T) {
	base := time.Unix(1700000000, 0)
	current := base
	b := newRunBreaker("slow", config.SequenceBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		WindowMS:         1000,
		OpenTimeoutMS:    500,
	})
	b.now = func() time.Time { return current }

	b.record(false)
	current = base.Add(1500 * time.Millisecond)
	b.record(false)
	assert.True(t, b.allow(), "the first failure fell out of the window")

	current = base.Add(1800 * time.Millisecond)
	b.record(false)
	assert.False(t, b.allow(), "two failures inside the window open the circuit")

	current = base.Add(2400 * time.Millisecond)
	assert.True(t, b.allow(), "the open timeout elapsed")
	assert.False(t, b.snapshot().Open)
}

func TestDisabledSequenceIsRejected(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID:      "dormant",
		Enabled: config.BoolPtr(false),
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Contains(t, err.Error(), "disabled")
}

func TestStepTimeoutCancelsDispatch(t *testing.T) {
	llm := &fakeCompleter{
		fn: func(ctx context.Context, req cascade.Request) (*cascade.Result, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return &cascade.Result{Text: "late", ProviderID: req.Provider, ModelID: "m1"}, nil
			}
		},
	}
	exec := newTestExecutor(t, llm)
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "impatient",
		Steps: []config.StepConfig{
			{Order: 1, MCPID: "claude", Params: map[string]any{"prompt": "hi"}, TimeoutMS: 20},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, outcome.Steps[0].Attempts)
}

func TestRunHonorsCancellation(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "cancelled",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := exec.Run(ctx, cfg, nil, "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcome.Steps)
}

func TestMCPStepNeedsPrompt(t *testing.T) {
	exec := newTestExecutor(t, &fakeCompleter{})
	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "mute",
		Steps: []config.StepConfig{
			{Order: 1, MCPID: "claude", Params: map[string]any{"system": "be brief"}},
		},
	})

	_, err := exec.Run(context.Background(), cfg, nil, "t1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a string prompt")
}

func TestLogWarningPolicyEmitsWarning(t *testing.T) {
	events := quietEvents()
	reg := tools.NewRegistry()
	require.NoError(t, reg.LoadFromConfig(nil))
	exec := NewExecutor(reg, &fakeCompleter{}, events)

	cfg := finishSequence(t, &config.SequenceConfig{
		ID: "noisy",
		Steps: []config.StepConfig{
			{Order: 1, ToolID: "calculator", Action: "divide", Params: map[string]any{"a": 1, "b": 0}, OnError: config.OnErrorLogWarning},
			{Order: 2, ToolID: "calculator", Action: "add", Params: map[string]any{"a": 1, "b": 1}},
		},
	})

	outcome, err := exec.Run(context.Background(), cfg, nil, "trace-w", nil)
	require.NoError(t, err)
	assert.Len(t, outcome.Steps, 2)

	warn := logger.LevelWarn
	entries := events.Snapshot(logger.Filter{Category: logger.CategoryTool, TraceID: "trace-w", MinLevel: &warn})
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "failed, continuing")
}
