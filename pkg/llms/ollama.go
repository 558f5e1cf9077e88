package llms

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/httpclient"
	"github.com/stentorlabs/stentor/pkg/observability"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider speaks the Ollama chat API (POST /api/chat).
type OllamaProvider struct {
	id      string
	host    string
	models  []string
	maxTok  int
	temp    float64
	timeout time.Duration
	client  *httpclient.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider builds the adapter from provider config.
func NewOllamaProvider(cfg *config.ProviderConfig) *OllamaProvider {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	if host == "" {
		host = defaultOllamaHost
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	temp := 0.7
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}

	return &OllamaProvider{
		id:      cfg.ID,
		host:    host,
		models:  modelCandidates(cfg),
		maxTok:  cfg.MaxTokens,
		temp:    temp,
		timeout: timeout,
		client:  newHTTPClient(timeout, nil),
	}
}

func (p *OllamaProvider) ID() string       { return p.id }
func (p *OllamaProvider) Adapter() string  { return string(config.AdapterOllama) }
func (p *OllamaProvider) Models() []string { return p.models }
func (p *OllamaProvider) Close() error     { return nil }

// Complete runs one non-streaming chat call.
func (p *OllamaProvider) Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	start := time.Now()
	tracer := observability.GetTracer("stentor.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrProviderID, p.id),
			attribute.String(observability.AttrLLMModel, req.Model),
			attribute.String("llm.adapter", "ollama"),
		),
	)
	defer span.End()

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)),
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: orDefaultFloat(req.Temperature, p.temp),
			NumPredict:  orDefaultInt(req.MaxTokens, p.maxTok),
		},
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	data, err := postJSON(ctx, p.client, p.host+"/api/chat", nil, body, p.id, req.Model)
	if err != nil {
		return nil, p.fail(ctx, span, req.Model, start, err)
	}

	var out ollamaChatResponse
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return nil, p.fail(ctx, span, req.Model, start, &ProviderError{
			Provider: p.id,
			Model:    req.Model,
			Reason:   ReasonEmptyResponse,
			Message:  "unparseable response body",
			Err:      jsonErr,
		})
	}
	// Ollama sometimes reports failures inside a 200 body.
	if out.Error != "" {
		perr := &ProviderError{Provider: p.id, Model: req.Model, Reason: ReasonServerError, Message: out.Error}
		if mentionsUnknownModel(out.Error) {
			perr.Reason = ReasonModelUnavailable
		}
		return nil, p.fail(ctx, span, req.Model, start, perr)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return nil, p.fail(ctx, span, req.Model, start, emptyResponseError(p.id, req.Model))
	}

	resp := &ModelResponse{
		Text:         out.Message.Content,
		Model:        orDefaultString(out.Model, req.Model),
		PromptTokens: out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, resp.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, resp.Model, time.Since(start), resp.PromptTokens, resp.OutputTokens, nil)
	return resp, nil
}

// Ping checks the tags endpoint, the cheapest liveness probe Ollama has.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return pingURL(ctx, p.client, p.host+"/api/tags", nil)
}

func (p *OllamaProvider) fail(ctx context.Context, span trace.Span, model string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, model, time.Since(start), 0, 0, err)
	return err
}

func orDefaultFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// modelCandidates orders a provider's models with the default first and
// no duplicates.
func modelCandidates(cfg *config.ProviderConfig) []string {
	out := make([]string, 0, len(cfg.Models)+1)
	seen := make(map[string]bool, len(cfg.Models)+1)
	if cfg.DefaultModel != "" {
		out = append(out, cfg.DefaultModel)
		seen[cfg.DefaultModel] = true
	}
	for _, m := range cfg.Models {
		if m == "" || seen[m] {
			continue
		}
		out = append(out, m)
		seen[m] = true
	}
	return out
}

var _ Provider = (*OllamaProvider)(nil)
