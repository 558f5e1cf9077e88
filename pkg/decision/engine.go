package decision

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/observability"
)

// classifierConfidence is assigned to decisions upgraded by Phase B.
const classifierConfidence = 0.75

// Completer is the slice of the provider cascade Phase B needs.
type Completer interface {
	Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error)
}

// Engine routes messages. Rule evaluation is pure and CPU-bound; the
// only suspension point is the optional Phase B classification call.
type Engine struct {
	cfg    config.DecisionConfig
	rules  []rule
	llm    Completer
	events *logger.EventLog
	cache  *cache
}

// NewEngine compiles the configured rules and seeds. llm may be nil,
// which disables Phase B regardless of configuration.
func NewEngine(cfg config.DecisionConfig, llm Completer, events *logger.EventLog) (*Engine, error) {
	cfg.SetDefaults()

	rules := make([]rule, 0, len(cfg.Rules)+8)
	for i, rc := range cfg.Rules {
		r, err := configRule(rc, i)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if !cfg.ReplaceBuiltinRules {
		rules = append(rules, builtinRules()...)
	}

	return &Engine{
		cfg:    cfg,
		rules:  rules,
		llm:    llm,
		events: events,
		cache:  newCache(cfg.CacheSize, cfg.CacheTTLSeconds),
	}, nil
}

// Decide routes one message. It never fails: a broken classifier
// keeps the rule decision, and an unmatched message falls through to
// the conversational default.
func (e *Engine) Decide(ctx context.Context, message, traceID string) *Decision {
	tracer := observability.GetTracer("stentor.decision")
	ctx, span := tracer.Start(ctx, observability.SpanDecision)
	defer span.End()

	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)
	key := normalize(lower)

	if d, ok := e.cache.get(key); ok {
		d.Cached = true
		observability.GetGlobalMetrics().RecordCacheLookup(ctx, "decision", true)
		observability.GetGlobalMetrics().RecordDecision(ctx, d.Strategy, d.Confidence, true)
		e.events.Debug(logger.CategoryDecision, traceID, "decision cache hit",
			map[string]any{"strategy": d.Strategy, "reasoning": d.Reasoning})
		span.SetAttributes(
			attribute.String(observability.AttrStrategy, d.Strategy),
			attribute.Float64(observability.AttrConfidence, d.Confidence),
		)
		return d
	}
	observability.GetGlobalMetrics().RecordCacheLookup(ctx, "decision", false)

	d := e.phaseA(lower, trimmed)
	if d.Confidence < e.cfg.ConfidenceThreshold && config.BoolValue(e.cfg.LLMAssisted, true) && e.llm != nil {
		e.phaseB(ctx, trimmed, traceID, d)
	}

	e.cache.add(key, d)
	observability.GetGlobalMetrics().RecordDecision(ctx, d.Strategy, d.Confidence, false)
	span.SetAttributes(
		attribute.String(observability.AttrStrategy, d.Strategy),
		attribute.Float64(observability.AttrConfidence, d.Confidence),
	)

	meta := map[string]any{"strategy": d.Strategy, "confidence": d.Confidence, "reasoning": d.Reasoning}
	if d.Tool != "" {
		meta["tool"] = d.Tool
	}
	if d.Agent != "" {
		meta["agent"] = d.Agent
	}
	e.events.Info(logger.CategoryDecision, traceID,
		fmt.Sprintf("routing to %s (%s)", d.Strategy, d.Reasoning), meta)
	return d
}

// CacheLen reports how many decisions are currently cached.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

func (e *Engine) phaseA(lower, original string) *Decision {
	for i := range e.rules {
		r := &e.rules[i]
		m, ok := r.match(lower, original)
		if !ok {
			continue
		}
		d := &Decision{
			Strategy:   r.strategy,
			Confidence: r.confidence,
			Reasoning:  r.reasoning,
			Tool:       r.tool,
			Action:     r.action,
			Agent:      r.agent,
		}
		if m != nil {
			if m.action != "" {
				d.Action = m.action
			}
			d.Params = m.params
		}
		return d
	}
	return &Decision{Strategy: StrategyLLM, Confidence: 0.5, Reasoning: "default conversational"}
}

// phaseB asks the cascade to pick a strategy for a message the rules
// were unsure about. Failures and unparseable answers keep the rule
// decision. Upgrades to tool or agent are accepted only when the rule
// already extracted a target, since the classifier cannot invent one.
func (e *Engine) phaseB(ctx context.Context, message, traceID string, d *Decision) {
	prompt := fmt.Sprintf(
		"Classify the following message into exactly one of: llm, rag, agent, tool.\nAnswer with the single word only.\n\nMessage: %s",
		message,
	)
	res, err := e.llm.Complete(ctx, cascade.Request{
		Messages:  []llms.Message{{Role: llms.RoleUser, Content: prompt}},
		MaxTokens: 8,
		TraceID:   traceID,
	})
	if err != nil {
		e.events.Warn(logger.CategoryDecision, traceID,
			"llm classifier unavailable, keeping rule decision",
			map[string]any{"error": err.Error()})
		return
	}

	strategy := parseStrategy(res.Text)
	switch strategy {
	case "":
		e.events.Debug(logger.CategoryDecision, traceID,
			"llm classifier answer unparseable, keeping rule decision",
			map[string]any{"answer": res.Text})
		return
	case StrategyTool:
		if d.Tool == "" {
			e.events.Debug(logger.CategoryDecision, traceID,
				"llm classifier picked tool without a target, keeping rule decision", nil)
			return
		}
	case StrategyAgent:
		if d.Agent == "" {
			e.events.Debug(logger.CategoryDecision, traceID,
				"llm classifier picked agent without a target, keeping rule decision", nil)
			return
		}
	}

	d.Strategy = strategy
	d.Confidence = classifierConfidence
	d.Reasoning = "llm classifier"
}

// parseStrategy extracts a strategy word from a model answer.
func parseStrategy(answer string) string {
	token := strings.ToLower(strings.TrimSpace(answer))
	token = strings.Trim(token, "\"'`.,! ")
	switch token {
	case StrategyLLM, StrategyRAG, StrategyAgent, StrategyTool:
		return token
	}
	return ""
}
