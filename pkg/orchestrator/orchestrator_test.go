package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/agents"
	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/decision"
	"github.com/stentorlabs/stentor/pkg/knowledge"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/session"
	"github.com/stentorlabs/stentor/pkg/tools"
	"github.com/stentorlabs/stentor/pkg/vector"
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
	last := req.Messages[len(req.Messages)-1]
	return &cascade.Result{Text: "echo: " + last.Content, ProviderID: "p1", ModelID: "m1"}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRetriever struct {
	fn func(query string) (*knowledge.Context, error)
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) (*knowledge.Context, error) {
	if f.fn != nil {
		return f.fn(query)
	}
	return nil, knowledge.ErrNoRelevantContext
}

type fakeAgents struct {
	mu    sync.Mutex
	calls []string
	fn    func(id string, input agents.Input) (*agents.Output, error)
}

func (f *fakeAgents) Invoke(_ context.Context, id string, input agents.Input) (*agents.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(id, input)
	}
	return &agents.Output{Text: "agent output"}, nil
}

type fixture struct {
	o        *Orchestrator
	cfg      *config.Config
	llm      *fakeCompleter
	kb       *fakeRetriever
	agents   *fakeAgents
	sessions *session.Service
	events   *logger.EventLog
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Decision.LLMAssisted = config.BoolPtr(false)
	if mutate != nil {
		mutate(cfg)
	}
	cfg.SetDefaults()

	events := logger.NewEventLog(logger.Options{
		RingSize: 256,
		Console:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	decider, err := decision.NewEngine(cfg.Decision, nil, events)
	require.NoError(t, err)

	registry := tools.NewRegistry()
	require.NoError(t, registry.LoadFromConfig(nil))

	f := &fixture{
		cfg:      cfg,
		llm:      &fakeCompleter{},
		kb:       &fakeRetriever{},
		agents:   &fakeAgents{},
		sessions: session.NewService(cfg.History),
		events:   events,
	}
	f.o = New(Deps{
		Config:    cfg,
		Decider:   decider,
		Sessions:  f.sessions,
		LLM:       f.llm,
		Tools:     registry,
		Agents:    f.agents,
		Knowledge: f.kb,
		Events:    events,
	})
	return f
}

func (f *fixture) chat(t *testing.T, req ChatRequest) *ChatResponse {
	t.Helper()
	resp, err := f.o.Chat(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestToolStrategyFormatsCalculation(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.chat(t, ChatRequest{Message: "what is 2 + 3"})

	assert.True(t, resp.OK)
	assert.Equal(t, decision.StrategyTool, resp.Strategy)
	assert.Equal(t, "calculator", resp.ToolUsed)
	assert.Equal(t, "2 + 3 = 5", resp.Text)
	assert.Equal(t, 0.95, resp.Confidence)
	assert.Equal(t, 0, f.llm.callCount())

	_, err := uuid.Parse(resp.SessionID)
	require.NoError(t, err, "a session id is issued when the request carries none")
	assert.NotEmpty(t, resp.TraceID)
	assert.GreaterOrEqual(t, resp.DurationMS, int64(0))

	history := f.sessions.History(resp.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, llms.RoleUser, history[0].Role)
	assert.Equal(t, "what is 2 + 3", history[0].Content)
	assert.Equal(t, decision.StrategyTool, history[1].Intent)
}

func TestLLMStrategyCarriesHistory(t *testing.T) {
	f := newFixture(t, nil)

	first := f.chat(t, ChatRequest{Message: "lovely weather today"})
	assert.Equal(t, decision.StrategyLLM, first.Strategy)
	assert.Equal(t, "p1", first.Provider)

	second := f.chat(t, ChatRequest{Message: "still raining though", SessionID: first.SessionID})
	assert.True(t, second.OK)

	require.Equal(t, 2, f.llm.callCount())
	msgs := f.llm.calls[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "lovely weather today", msgs[0].Content)
	assert.Equal(t, llms.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "still raining though", msgs[2].Content)
}

func TestCommandClear(t *testing.T) {
	f := newFixture(t, nil)

	seed := f.chat(t, ChatRequest{Message: "hello there"})
	require.Equal(t, 2, f.sessions.TurnCount(seed.SessionID))

	resp := f.chat(t, ChatRequest{Message: "/clear", SessionID: seed.SessionID})

	assert.True(t, resp.OK)
	assert.Equal(t, StrategyCommand, resp.Strategy)
	assert.Contains(t, resp.Text, "cleared (2 turns")
	assert.Equal(t, 0, f.sessions.TurnCount(seed.SessionID))
	assert.Equal(t, 1, f.llm.callCount(), "commands never reach the cascade")
}

func TestCommandHelp(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.chat(t, ChatRequest{Message: "/help"})

	assert.True(t, resp.OK)
	assert.Equal(t, StrategyCommand, resp.Strategy)
	assert.Contains(t, resp.Text, "/clear")
	assert.Contains(t, resp.Text, "/help")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.chat(t, ChatRequest{Message: "/frobnicate now"})

	assert.False(t, resp.OK)
	assert.Equal(t, StrategyCommand, resp.Strategy)
	assert.Contains(t, resp.Text, `Unknown command "/frobnicate"`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Kind)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t, nil)

	for _, message := range []string{"", "   \n\t"} {
		resp := f.chat(t, ChatRequest{Message: message})
		assert.False(t, resp.OK)
		assert.Equal(t, StrategyError, resp.Strategy)
		assert.Equal(t, "Please provide a message.", resp.Text)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "validation", resp.Error.Kind)
	}
}

func TestMessageSizeBoundary(t *testing.T) {
	f := newFixture(t, nil)

	accepted := f.chat(t, ChatRequest{Message: strings.Repeat("a", 8192)})
	assert.True(t, accepted.OK, "a message of exactly 8192 bytes is accepted")

	rejected := f.chat(t, ChatRequest{Message: strings.Repeat("a", 8193)})
	assert.False(t, rejected.OK)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, "validation", rejected.Error.Kind)
	assert.Contains(t, rejected.Text, "8 KB")
}

func TestDispatchErrorBecomesEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.fn = func(context.Context, cascade.Request) (*cascade.Result, error) {
		return nil, &cascade.AllProvidersExhausted{}
	}

	resp := f.chat(t, ChatRequest{Message: "lovely weather today"})

	assert.False(t, resp.OK)
	assert.Equal(t, StrategyError, resp.Strategy)
	assert.Equal(t, internalErrorText, resp.Text)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "all_providers_exhausted", resp.Error.Kind)
	assert.NotEmpty(t, resp.TraceID)

	entries := f.events.Snapshot(logger.Filter{Category: logger.CategoryResponse, TraceID: resp.TraceID})
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "request failed")
}

func TestFailedToolNamesNoComponent(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.chat(t, ChatRequest{Message: "what is 5 / 0"})

	assert.False(t, resp.OK)
	assert.Empty(t, resp.ToolUsed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "tool", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "division by zero")

	assert.Equal(t, 0, f.sessions.TurnCount(resp.SessionID), "failed exchanges stay out of history")
}

func TestDispatchPanicRecovered(t *testing.T) {
	f := newFixture(t, nil)
	f.agents.fn = func(string, agents.Input) (*agents.Output, error) {
		panic("agent exploded")
	}

	resp := f.chat(t, ChatRequest{Message: "schedule a task to deploy"})

	assert.False(t, resp.OK)
	assert.Equal(t, internalErrorText, resp.Text)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "internal", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "agent exploded")
}

func TestAgentStrategyInvokes(t *testing.T) {
	f := newFixture(t, nil)
	f.agents.fn = func(id string, input agents.Input) (*agents.Output, error) {
		assert.Equal(t, "task_manager", id)
		assert.Equal(t, "schedule a task to deploy", input.Message)
		return &agents.Output{Text: "task noted"}, nil
	}

	resp := f.chat(t, ChatRequest{Message: "schedule a task to deploy"})

	assert.True(t, resp.OK)
	assert.Equal(t, decision.StrategyAgent, resp.Strategy)
	assert.Equal(t, "task_manager", resp.AgentUsed)
	assert.Equal(t, "task noted", resp.Text)
}

func TestRAGPathAttachesHits(t *testing.T) {
	f := newFixture(t, nil)
	f.kb.fn = func(query string) (*knowledge.Context, error) {
		assert.Equal(t, "what is a goroutine?", query)
		return &knowledge.Context{
			Text: "goroutines are lightweight threads",
			Hits: []vector.Hit{{Score: 0.9, Text: "goroutines are lightweight threads"}},
		}, nil
	}

	resp := f.chat(t, ChatRequest{Message: "what is a goroutine?"})

	assert.True(t, resp.OK)
	assert.Equal(t, decision.StrategyRAG, resp.Strategy)
	assert.Equal(t, "p1", resp.Provider)
	require.Len(t, resp.RAGHits, 1)
	assert.Equal(t, float32(0.9), resp.RAGHits[0].Score)
	assert.Equal(t, "goroutines are lightweight threads", resp.RAGHits[0].Snippet)

	require.Equal(t, 1, f.llm.callCount())
	first := f.llm.calls[0].Messages[0]
	assert.Equal(t, llms.RoleSystem, first.Role)
	assert.Contains(t, first.Content, "goroutines are lightweight threads")
}

func TestRAGDegradesToLLM(t *testing.T) {
	f := newFixture(t, nil)

	// The default retriever finds nothing; degrade is on by default.
	resp := f.chat(t, ChatRequest{Message: "what is a goroutine?"})

	assert.True(t, resp.OK)
	assert.Equal(t, decision.StrategyRAG, resp.Strategy)
	assert.Empty(t, resp.RAGHits)
	assert.Equal(t, "p1", resp.Provider)
	assert.Equal(t, 1, f.llm.callCount())

	warns := f.events.Snapshot(logger.Filter{Category: logger.CategoryRAG, TraceID: resp.TraceID})
	require.NotEmpty(t, warns)
	assert.Contains(t, warns[0].Message, "answering without context")
}

func TestRAGSurfacesWhenDegradeDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Retrieval.DegradeToLLM = config.BoolPtr(false)
	})

	resp := f.chat(t, ChatRequest{Message: "what is a goroutine?"})
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Text, "anything relevant")
	assert.Equal(t, 0, f.llm.callCount())

	f.kb.fn = func(string) (*knowledge.Context, error) {
		return nil, errors.New("store down")
	}
	resp = f.chat(t, ChatRequest{Message: "what is a goroutine?"})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "retrieval", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "store down")
}

func TestSessionBusyRejects(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.History.SessionPolicy = session.PolicyReject
	})

	release, err := f.sessions.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	resp := f.chat(t, ChatRequest{Message: "hello", SessionID: "s1"})

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "busy", resp.Error.Kind)
	assert.Contains(t, resp.Text, "Try again")
}

func TestCancelledCallerGetsNoResponse(t *testing.T) {
	f := newFixture(t, nil)
	started := make(chan struct{})
	f.llm.fn = func(ctx context.Context, _ cascade.Request) (*cascade.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	resp, err := f.o.Chat(ctx, ChatRequest{Message: "lovely weather today", TraceID: "t-cancel"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)

	entries := f.events.Snapshot(logger.Filter{TraceID: "t-cancel", Category: logger.CategoryRequest})
	var cancelledLogged bool
	for _, e := range entries {
		if strings.Contains(e.Message, "cancelled") {
			cancelledLogged = true
		}
	}
	assert.True(t, cancelledLogged, "the trace is marked cancelled")
}

func TestRequestTimeoutProducesEnvelope(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.System.RequestTimeoutMS = 30
	})
	f.llm.fn = func(ctx context.Context, _ cascade.Request) (*cascade.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	resp := f.chat(t, ChatRequest{Message: "lovely weather today"})

	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "timeout", resp.Error.Kind)
	assert.Equal(t, internalErrorText, resp.Text)
}

func TestDebugAttachesTraceLogs(t *testing.T) {
	f := newFixture(t, nil)

	plain := f.chat(t, ChatRequest{Message: "hello there"})
	assert.Empty(t, plain.Logs)

	resp := f.chat(t, ChatRequest{Message: "hello once more", Debug: true})
	require.NotEmpty(t, resp.Logs)
	for _, entry := range resp.Logs {
		assert.Equal(t, resp.TraceID, entry.TraceID, "debug logs carry only this trace")
	}
}

func TestTraceIDPropagates(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.chat(t, ChatRequest{Message: "lovely weather today", TraceID: "t-mine"})

	assert.Equal(t, "t-mine", resp.TraceID)
	require.Equal(t, 1, f.llm.callCount())
	assert.Equal(t, "t-mine", f.llm.calls[0].TraceID)
}
