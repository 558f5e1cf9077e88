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

const (
	defaultAnthropicHost = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"
)

// AnthropicProvider speaks the Anthropic messages API
// (POST /v1/messages). System messages travel in the top-level system
// field, not the messages array.
type AnthropicProvider struct {
	id     string
	host   string
	apiKey string
	models []string
	maxTok int
	temp   float64
	client *httpclient.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

// NewAnthropicProvider builds the adapter from provider config.
func NewAnthropicProvider(cfg *config.ProviderConfig) *AnthropicProvider {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	if host == "" {
		host = defaultAnthropicHost
	}

	temp := 0.7
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}

	return &AnthropicProvider{
		id:     cfg.ID,
		host:   host,
		apiKey: cfg.APIKey,
		models: modelCandidates(cfg),
		maxTok: cfg.MaxTokens,
		temp:   temp,
		client: newHTTPClient(time.Duration(cfg.TimeoutMS)*time.Millisecond, httpclient.ParseAnthropicHeaders),
	}
}

func (p *AnthropicProvider) ID() string       { return p.id }
func (p *AnthropicProvider) Adapter() string  { return string(config.AdapterAnthropic) }
func (p *AnthropicProvider) Models() []string { return p.models }
func (p *AnthropicProvider) Close() error     { return nil }

// Complete runs one non-streaming messages call.
func (p *AnthropicProvider) Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	start := time.Now()
	tracer := observability.GetTracer("stentor.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrProviderID, p.id),
			attribute.String(observability.AttrLLMModel, req.Model),
			attribute.String("llm.adapter", "anthropic"),
		),
	)
	defer span.End()

	temp := orDefaultFloat(req.Temperature, p.temp)
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   orDefaultInt(req.MaxTokens, p.maxTok),
		Temperature: &temp,
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	body.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	data, err := postJSON(ctx, p.client, p.host+"/v1/messages", headers, body, p.id, req.Model)
	if err != nil {
		return nil, p.fail(ctx, span, req.Model, start, err)
	}

	var out anthropicResponse
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return nil, p.fail(ctx, span, req.Model, start, &ProviderError{
			Provider: p.id,
			Model:    req.Model,
			Reason:   ReasonEmptyResponse,
			Message:  "unparseable response body",
			Err:      jsonErr,
		})
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, p.fail(ctx, span, req.Model, start, emptyResponseError(p.id, req.Model))
	}

	resp := &ModelResponse{
		Text:         text.String(),
		Model:        orDefaultString(out.Model, req.Model),
		PromptTokens: out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, resp.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, resp.Model, time.Since(start), resp.PromptTokens, resp.OutputTokens, nil)
	return resp, nil
}

// Ping issues a deliberately tiny request; Anthropic has no cheap
// list endpoint that validates the key the same way.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	return pingURL(ctx, p.client, p.host+"/v1/models", headers)
}

func (p *AnthropicProvider) fail(ctx context.Context, span trace.Span, model string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, model, time.Since(start), 0, 0, err)
	return err
}

var _ Provider = (*AnthropicProvider)(nil)
