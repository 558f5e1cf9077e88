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

const defaultOpenAIHost = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat completions API. Any endpoint
// implementing the same surface (vLLM, LiteLLM, together.ai) works by
// overriding base_url.
type OpenAIProvider struct {
	id     string
	host   string
	apiKey string
	models []string
	maxTok int
	temp   float64
	client *httpclient.Client
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

// NewOpenAIProvider builds the adapter from provider config.
func NewOpenAIProvider(cfg *config.ProviderConfig) *OpenAIProvider {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	if host == "" {
		host = defaultOpenAIHost
	}

	temp := 0.7
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}

	return &OpenAIProvider{
		id:     cfg.ID,
		host:   host,
		apiKey: cfg.APIKey,
		models: modelCandidates(cfg),
		maxTok: cfg.MaxTokens,
		temp:   temp,
		client: newHTTPClient(time.Duration(cfg.TimeoutMS)*time.Millisecond, httpclient.ParseOpenAIHeaders),
	}
}

func (p *OpenAIProvider) ID() string       { return p.id }
func (p *OpenAIProvider) Adapter() string  { return string(config.AdapterOpenAI) }
func (p *OpenAIProvider) Models() []string { return p.models }
func (p *OpenAIProvider) Close() error     { return nil }

// Complete runs one non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	start := time.Now()
	tracer := observability.GetTracer("stentor.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrProviderID, p.id),
			attribute.String(observability.AttrLLMModel, req.Model),
			attribute.String("llm.adapter", "openai"),
		),
	)
	defer span.End()

	temp := orDefaultFloat(req.Temperature, p.temp)
	body := openaiChatRequest{
		Model:       req.Model,
		Messages:    make([]openaiMessage, 0, len(req.Messages)),
		MaxTokens:   orDefaultInt(req.MaxTokens, p.maxTok),
		Temperature: &temp,
		Stream:      false,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	data, err := postJSON(ctx, p.client, p.host+"/chat/completions", headers, body, p.id, req.Model)
	if err != nil {
		return nil, p.fail(ctx, span, req.Model, start, err)
	}

	var out openaiChatResponse
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return nil, p.fail(ctx, span, req.Model, start, &ProviderError{
			Provider: p.id,
			Model:    req.Model,
			Reason:   ReasonEmptyResponse,
			Message:  "unparseable response body",
			Err:      jsonErr,
		})
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, p.fail(ctx, span, req.Model, start, emptyResponseError(p.id, req.Model))
	}

	resp := &ModelResponse{
		Text:         out.Choices[0].Message.Content,
		Model:        orDefaultString(out.Model, req.Model),
		PromptTokens: out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, resp.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, resp.Model, time.Since(start), resp.PromptTokens, resp.OutputTokens, nil)
	return resp, nil
}

// Ping lists models, which exercises both reachability and the API key.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return pingURL(ctx, p.client, p.host+"/models", headers)
}

func (p *OpenAIProvider) fail(ctx context.Context, span trace.Span, model string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, model, time.Since(start), 0, 0, err)
	return err
}

var _ Provider = (*OpenAIProvider)(nil)
