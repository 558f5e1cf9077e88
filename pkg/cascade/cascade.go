// Package cascade walks the configured providers in resolution order
// until one produces a completion. Each provider sits behind a circuit
// breaker; model-specific rejections advance to the provider's next
// candidate model while provider-level failures advance the walk.
package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/observability"
)

// Request is one completion request against the cascade.
type Request struct {
	Messages    []llms.Message
	MaxTokens   int
	Temperature float64

	// Provider pins the walk to a single provider id. Empty walks the
	// full cascade.
	Provider string

	// Prefer moves providers of this kind to the front of the walk.
	// It reorders, never excludes.
	Prefer config.ProviderKind

	// TraceID correlates event log entries for this request.
	TraceID string
}

// Attempt records one real call against a provider/model pair.
// Breaker-gated skips never appear here.
type Attempt struct {
	ProviderID string          `json:"provider_id"`
	ModelID    string          `json:"model_id"`
	Reason     llms.FailReason `json:"reason"`
	DurationMS int64           `json:"duration_ms"`
}

// Result is a successful completion plus the failed attempts that
// preceded it.
type Result struct {
	Text         string
	ProviderID   string
	ModelID      string
	PromptTokens int
	OutputTokens int
	Attempts     []Attempt
}

// AllProvidersExhausted reports that every eligible provider failed.
// Attempts holds each real attempt in walk order.
type AllProvidersExhausted struct {
	Attempts []Attempt
}

func (e *AllProvidersExhausted) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers exhausted: no attempts were possible"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("all providers exhausted after %d attempts (last: %s/%s: %s)",
		len(e.Attempts), last.ProviderID, last.ModelID, last.Reason)
}

// Cascade owns the walk order and per-provider breakers. Reconfigure
// swaps the order atomically; breaker state survives reloads for
// providers that keep their id.
type Cascade struct {
	mu       sync.RWMutex
	registry *llms.Registry
	order    []*config.ProviderConfig
	breakers map[string]*Breaker
	timeout  time.Duration
	events   *logger.EventLog
}

func New(cfg *config.Config, registry *llms.Registry, events *logger.EventLog) *Cascade {
	c := &Cascade{
		registry: registry,
		breakers: make(map[string]*Breaker),
		events:   events,
	}
	c.Reconfigure(cfg)
	return c
}

// Reconfigure installs a new walk order. Breakers for surviving
// provider ids keep their state; breakers for removed ids are dropped.
func (c *Cascade) Reconfigure(cfg *config.Config) {
	c.rewire(cfg, nil)
}

// Rewire installs a new walk order together with the provider registry
// backing it. Reloads use it to swap providers without losing breaker
// state for ids that survive the swap.
func (c *Cascade) Rewire(cfg *config.Config, registry *llms.Registry) {
	c.rewire(cfg, registry)
}

func (c *Cascade) rewire(cfg *config.Config, registry *llms.Registry) {
	order := cfg.CascadeOrder()

	c.mu.Lock()
	defer c.mu.Unlock()

	if registry != nil {
		c.registry = registry
	}

	breakers := make(map[string]*Breaker, len(order))
	for _, pc := range order {
		if prev, ok := c.breakers[pc.ID]; ok {
			breakers[pc.ID] = prev
			continue
		}
		b := NewBreaker(pc.ID, pc.CircuitBreaker)
		id := pc.ID
		b.OnTransition(func(from, to BreakerState) {
			c.events.Info(logger.CategoryCircuit, "", fmt.Sprintf("breaker %s: %s -> %s", id, from, to), map[string]any{
				"provider_id": id,
				"from":        string(from),
				"to":          string(to),
			})
			observability.GetGlobalMetrics().RecordCircuitTransition(context.Background(), id, string(to))
		})
		breakers[pc.ID] = b
	}

	c.order = order
	c.breakers = breakers
	c.timeout = time.Duration(cfg.System.CascadeTimeoutMS) * time.Millisecond
}

// Breakers returns a snapshot of every provider breaker, in walk order.
func (c *Cascade) Breakers() []BreakerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]BreakerSnapshot, 0, len(c.order))
	for _, pc := range c.order {
		if b, ok := c.breakers[pc.ID]; ok {
			out = append(out, b.Snapshot())
		}
	}
	return out
}

// walkOrder applies the kind preference: providers of the preferred
// kind keep their relative order but move ahead of the rest.
func walkOrder(order []*config.ProviderConfig, prefer config.ProviderKind) []*config.ProviderConfig {
	if prefer == "" {
		return order
	}
	walk := make([]*config.ProviderConfig, 0, len(order))
	var rest []*config.ProviderConfig
	for _, pc := range order {
		if pc.Type == prefer {
			walk = append(walk, pc)
		} else {
			rest = append(rest, pc)
		}
	}
	return append(walk, rest...)
}

// Complete walks the cascade until a provider returns usable text.
// Failure reasons decide the step: model_unavailable advances to the
// provider's next candidate model, anything else advances the walk.
// Caller cancellation stops the walk with the context error.
func (c *Cascade) Complete(ctx context.Context, req Request) (*Result, error) {
	c.mu.RLock()
	registry := c.registry
	order := c.order
	breakers := c.breakers
	timeout := c.timeout
	c.mu.RUnlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var attempts []Attempt

	for _, pc := range walkOrder(order, req.Prefer) {
		if req.Provider != "" && pc.ID != req.Provider {
			continue
		}

		provider, ok := registry.Get(pc.ID)
		if !ok {
			continue
		}

		breaker := breakers[pc.ID]
		if breaker != nil && !breaker.Allow() {
			// No attempt record: nothing was tried.
			c.events.Debug(logger.CategoryCircuit, req.TraceID,
				fmt.Sprintf("skipping %s: breaker open", pc.ID),
				map[string]any{"provider_id": pc.ID})
			continue
		}

		result, visitAttempts, err := c.visit(ctx, pc, provider, req)
		attempts = append(attempts, visitAttempts...)

		if result != nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			result.Attempts = attempts
			return result, nil
		}
		if err != nil {
			// The walk context expired or the caller went away; the
			// provider is not at fault.
			return nil, err
		}
		// One breaker failure per visited provider, regardless of how
		// many candidate models were tried.
		if breaker != nil && len(visitAttempts) > 0 {
			breaker.RecordFailure()
		}
	}

	exhausted := &AllProvidersExhausted{Attempts: attempts}
	c.events.Error(logger.CategoryLLM, req.TraceID, exhausted.Error(), map[string]any{
		"attempts": len(attempts),
	})
	return nil, exhausted
}

// visit tries every candidate model of one provider. It returns a
// result on success, a context error when the walk must stop, or
// (nil, attempts, nil) when the provider is exhausted.
func (c *Cascade) visit(ctx context.Context, pc *config.ProviderConfig, provider llms.Provider, req Request) (*Result, []Attempt, error) {
	var attempts []Attempt

	for _, model := range provider.Models() {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if pc.TimeoutMS > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(pc.TimeoutMS)*time.Millisecond)
		}

		start := time.Now()
		resp, err := provider.Complete(attemptCtx, llms.ModelRequest{
			Model:       model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if cancel != nil {
			cancel()
		}
		duration := time.Since(start)

		if err == nil {
			c.events.Success(logger.CategoryLLM, req.TraceID,
				fmt.Sprintf("completion from %s/%s", pc.ID, resp.Model),
				map[string]any{
					"provider_id":   pc.ID,
					"model_id":      resp.Model,
					"duration_ms":   duration.Milliseconds(),
					"prompt_tokens": resp.PromptTokens,
					"output_tokens": resp.OutputTokens,
				})
			c.events.Metrics().Record("cascade", duration, true)
			return &Result{
				Text:         resp.Text,
				ProviderID:   pc.ID,
				ModelID:      resp.Model,
				PromptTokens: resp.PromptTokens,
				OutputTokens: resp.OutputTokens,
			}, attempts, nil
		}

		reason := Classify(err)
		attempts = append(attempts, Attempt{
			ProviderID: pc.ID,
			ModelID:    model,
			Reason:     reason,
			DurationMS: duration.Milliseconds(),
		})
		c.events.Warn(logger.CategoryLLM, req.TraceID,
			fmt.Sprintf("attempt %s/%s failed: %s", pc.ID, model, reason),
			map[string]any{
				"provider_id": pc.ID,
				"model_id":    model,
				"reason":      string(reason),
				"duration_ms": duration.Milliseconds(),
				"error":       err.Error(),
			})
		c.events.Metrics().Record("cascade", duration, false)

		// Walk context gone: the caller cancelled or the walk budget
		// expired. Stop without blaming the provider.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempts, ctxErr
		}

		if advancesModel(reason) {
			continue
		}
		break
	}

	return nil, attempts, nil
}
