// Package orchestrator owns the chat request lifecycle: validate the
// envelope, resolve the session, decide a strategy, dispatch to the
// matching subsystem, format the answer, and append the exchange to
// history. Every accepted request produces exactly one ChatResponse;
// the single exception is a cancelled caller, who gets none. Failures
// inside dispatch become the error envelope, never a panic or a
// partial reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stentorlabs/stentor/pkg/agents"
	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/decision"
	"github.com/stentorlabs/stentor/pkg/knowledge"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/session"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// Completer sends a completion request through the provider cascade.
type Completer interface {
	Complete(ctx context.Context, req cascade.Request) (*cascade.Result, error)
}

// AgentRunner dispatches agent-strategy requests. The runtime binds
// the agent registry together with the services an agent may touch.
type AgentRunner interface {
	Invoke(ctx context.Context, id string, input agents.Input) (*agents.Output, error)
}

// Retriever assembles a grounded context for rag-strategy requests.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*knowledge.Context, error)
}

// Deps wires the orchestrator to the subsystems it dispatches to.
// Knowledge may be nil when no knowledge base is configured; rag
// decisions then degrade like any other retrieval failure.
type Deps struct {
	Config    *config.Config
	Decider   *decision.Engine
	Sessions  *session.Service
	LLM       Completer
	Tools     *tools.Registry
	Agents    AgentRunner
	Knowledge Retriever
	Events    *logger.EventLog
}

type Orchestrator struct {
	cfg      *config.Config
	decider  *decision.Engine
	sessions *session.Service
	llm      Completer
	tools    *tools.Registry
	agents   AgentRunner
	kb       Retriever
	events   *logger.EventLog
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		decider:  d.Decider,
		sessions: d.Sessions,
		llm:      d.LLM,
		tools:    d.Tools,
		agents:   d.Agents,
		kb:       d.Knowledge,
		events:   d.Events,
	}
}

// call carries the per-request bookkeeping the response helpers need.
type call struct {
	span  trace.Span
	start time.Time
	debug bool
}

// dispatchResult is what a strategy path hands back for assembly.
// Component ids are set only on success so a failed response never
// names a component.
type dispatchResult struct {
	text     string
	provider string
	tool     string
	agent    string
	ragHits  []RAGHit
}

// Chat runs one request end to end and returns its response. A nil
// response with a non-nil error means the caller's context ended
// first; no response is owed to a cancelled caller.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c := call{start: time.Now(), debug: req.Debug || o.cfg.System.DebugLogs}

	traceID := strings.TrimSpace(req.TraceID)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	tracer := observability.GetTracer("stentor.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanChatRequest,
		trace.WithAttributes(attribute.String(observability.AttrTraceID, traceID)),
	)
	defer span.End()
	c.span = span

	o.events.Info(logger.CategoryRequest, traceID, "chat request received", map[string]any{
		"session": req.SessionID,
		"bytes":   len(req.Message),
	})

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return o.refuse(ctx, c, req.SessionID, traceID, "empty message",
			"Please provide a message."), nil
	}
	if len(req.Message) > maxMessageBytes {
		return o.refuse(ctx, c, req.SessionID, traceID,
			fmt.Sprintf("message of %d bytes exceeds the %d byte limit", len(req.Message), maxMessageBytes),
			"Message too long: the limit is 8 KB."), nil
	}

	sessionID := o.sessions.EnsureID(req.SessionID)
	span.SetAttributes(attribute.String(observability.AttrSessionID, sessionID))

	reqCtx, cancel := context.WithTimeout(ctx, o.requestTimeout())
	defer cancel()

	release, err := o.sessions.Acquire(reqCtx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(c, traceID, ctx.Err())
		}
		if errors.Is(err, session.ErrBusy) {
			return o.busy(ctx, c, sessionID, traceID, err), nil
		}
		return o.failure(ctx, c, sessionID, traceID, fmt.Errorf("waiting for session: %w", err)), nil
	}
	defer release()

	if strings.HasPrefix(message, "/") {
		return o.finish(ctx, c, o.runCommand(message, sessionID, traceID)), nil
	}

	history := o.sessions.History(sessionID)
	d := o.decider.Decide(reqCtx, message, traceID)
	span.SetAttributes(attribute.String(observability.AttrStrategy, d.Strategy))

	result, err := o.dispatch(reqCtx, d, history, message, sessionID, traceID)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(c, traceID, ctx.Err())
		}
		return o.failure(ctx, c, sessionID, traceID, err), nil
	}

	o.sessions.Append(sessionID,
		session.Turn{Role: llms.RoleUser, Content: message},
		session.Turn{Role: llms.RoleAssistant, Content: result.text, Intent: d.Strategy, Provider: result.provider},
	)

	resp := &ChatResponse{
		OK:         true,
		Text:       result.text,
		Strategy:   d.Strategy,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Provider:   result.provider,
		ToolUsed:   result.tool,
		AgentUsed:  result.agent,
		RAGHits:    result.ragHits,
		SessionID:  sessionID,
		TraceID:    traceID,
	}
	return o.finish(ctx, c, resp), nil
}

// dispatch routes the decided strategy to its subsystem. The deferred
// recover is the outermost safety net: a panicking component becomes
// an error envelope, not a dead process.
func (o *Orchestrator) dispatch(ctx context.Context, d *decision.Decision, history []session.Turn, message, sessionID, traceID string) (result *dispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	switch d.Strategy {
	case decision.StrategyTool:
		return o.runTool(ctx, d)
	case decision.StrategyAgent:
		return o.runAgent(ctx, d, message, sessionID, traceID)
	case decision.StrategyRAG:
		return o.runRAG(ctx, history, message, traceID)
	default:
		return o.runLLM(ctx, history, message, traceID, "")
	}
}

func (o *Orchestrator) runTool(ctx context.Context, d *decision.Decision) (*dispatchResult, error) {
	res, err := o.tools.Execute(ctx, d.Tool, d.Action, d.Params)
	if err != nil {
		return nil, err
	}
	return &dispatchResult{text: formatToolResult(res), tool: d.Tool}, nil
}

func (o *Orchestrator) runAgent(ctx context.Context, d *decision.Decision, message, sessionID, traceID string) (*dispatchResult, error) {
	out, err := o.agents.Invoke(ctx, d.Agent, agents.Input{
		Message:   message,
		SessionID: sessionID,
		TraceID:   traceID,
		Params:    d.Params,
	})
	if err != nil {
		return nil, err
	}
	return &dispatchResult{text: out.Text, agent: d.Agent}, nil
}

// runRAG grounds the completion in retrieved context. Retrieval
// failures degrade to a plain completion when rag_degrade_to_llm
// allows it; otherwise an empty retrieval is answered honestly and
// anything else surfaces as an error.
func (o *Orchestrator) runRAG(ctx context.Context, history []session.Turn, message, traceID string) (*dispatchResult, error) {
	kctx, err := o.retrieve(ctx, message)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if config.BoolValue(o.cfg.Retrieval.DegradeToLLM, true) {
			o.events.Warn(logger.CategoryRAG, traceID,
				fmt.Sprintf("retrieval unavailable, answering without context: %v", err), nil)
			return o.runLLM(ctx, history, message, traceID, "")
		}
		if errors.Is(err, knowledge.ErrNoRelevantContext) {
			return &dispatchResult{text: "I could not find anything relevant in the knowledge base."}, nil
		}
		return nil, &retrievalError{err: err}
	}

	res, err := o.complete(ctx, history, message, traceID, kctx.SystemInstruction())
	if err != nil {
		return nil, err
	}

	hits := make([]RAGHit, 0, len(kctx.Hits))
	for _, h := range kctx.Hits {
		hits = append(hits, RAGHit{Score: h.Score, Snippet: snippet(h.Text)})
	}
	return &dispatchResult{text: res.Text, provider: res.ProviderID, ragHits: hits}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, message string) (*knowledge.Context, error) {
	if o.kb == nil {
		return nil, knowledge.ErrNoRelevantContext
	}
	return o.kb.Retrieve(ctx, message)
}

func (o *Orchestrator) runLLM(ctx context.Context, history []session.Turn, message, traceID, system string) (*dispatchResult, error) {
	res, err := o.complete(ctx, history, message, traceID, system)
	if err != nil {
		return nil, err
	}
	return &dispatchResult{text: res.Text, provider: res.ProviderID}, nil
}

// complete sends the message through the cascade with the session's
// prior turns as context. System turns stored in history are skipped;
// only the optional retrieval instruction speaks as system here.
func (o *Orchestrator) complete(ctx context.Context, history []session.Turn, message, traceID, system string) (*cascade.Result, error) {
	messages := make([]llms.Message, 0, len(history)+2)
	if system != "" {
		messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: system})
	}
	for _, turn := range history {
		switch turn.Role {
		case llms.RoleUser, llms.RoleAssistant:
			messages = append(messages, llms.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	messages = append(messages, llms.Message{Role: llms.RoleUser, Content: message})

	return o.llm.Complete(ctx, cascade.Request{Messages: messages, TraceID: traceID})
}

// refuse answers a request the caller got wrong: specific text, the
// validation kind, logged at info.
func (o *Orchestrator) refuse(ctx context.Context, c call, sessionID, traceID, detail, text string) *ChatResponse {
	o.events.Info(logger.CategoryRequest, traceID, "request rejected: "+detail, nil)
	return o.finish(ctx, c, &ChatResponse{
		OK:        false,
		Text:      text,
		Strategy:  StrategyError,
		SessionID: sessionID,
		TraceID:   traceID,
		Error:     &ErrorInfo{Kind: "validation", Message: detail},
	})
}

// busy answers a request that lost the session gate.
func (o *Orchestrator) busy(ctx context.Context, c call, sessionID, traceID string, err error) *ChatResponse {
	o.events.Info(logger.CategoryRequest, traceID, "session busy", map[string]any{"session": sessionID})
	return o.finish(ctx, c, &ChatResponse{
		OK:        false,
		Text:      "The session is handling another request. Try again in a moment.",
		Strategy:  StrategyError,
		SessionID: sessionID,
		TraceID:   traceID,
		Error:     &ErrorInfo{Kind: "busy", Message: err.Error()},
	})
}

// failure converts a dispatch error into the user-safe envelope. The
// detail lands in Error and in the response-category logs, never in
// the text.
func (o *Orchestrator) failure(ctx context.Context, c call, sessionID, traceID string, err error) *ChatResponse {
	kind := errorKind(err)
	o.events.Error(logger.CategoryResponse, traceID, fmt.Sprintf("request failed: %v", err), map[string]any{
		"kind": kind,
	})
	return o.finish(ctx, c, &ChatResponse{
		OK:        false,
		Text:      internalErrorText,
		Strategy:  StrategyError,
		SessionID: sessionID,
		TraceID:   traceID,
		Error:     &ErrorInfo{Kind: kind, Message: err.Error()},
	})
}

// cancelled marks the trace and returns no response. The caller is
// gone; nothing downstream should fabricate one.
func (o *Orchestrator) cancelled(c call, traceID string, err error) (*ChatResponse, error) {
	o.events.Warn(logger.CategoryRequest, traceID, "request cancelled", nil)
	c.span.SetStatus(codes.Error, "cancelled")
	return nil, err
}

// finish stamps duration, records metrics, logs the terminal state,
// and attaches the trace's log entries when debugging. Every response
// leaves through here exactly once.
func (o *Orchestrator) finish(ctx context.Context, c call, resp *ChatResponse) *ChatResponse {
	duration := time.Since(c.start)
	resp.DurationMS = duration.Milliseconds()

	var err error
	if !resp.OK && resp.Error != nil {
		err = errors.New(resp.Error.Message)
		c.span.SetStatus(codes.Error, resp.Error.Message)
	} else {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.SetAttributes(attribute.String(observability.AttrStrategy, resp.Strategy))
	observability.GetGlobalMetrics().RecordChatRequest(ctx, resp.Strategy, duration, err)
	o.events.Metrics().Record("request", duration, resp.OK)

	if resp.OK {
		o.events.Success(logger.CategoryResponse, resp.TraceID,
			fmt.Sprintf("responded via %s in %dms", resp.Strategy, resp.DurationMS), map[string]any{
				"strategy": resp.Strategy,
				"provider": resp.Provider,
			})
	}

	if c.debug {
		resp.Logs = o.events.Snapshot(logger.Filter{TraceID: resp.TraceID})
	}
	return resp
}

func (o *Orchestrator) requestTimeout() time.Duration {
	ms := o.cfg.System.RequestTimeoutMS
	if ms <= 0 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
