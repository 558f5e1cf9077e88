package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/observability"
)

// GeminiProvider wraps the official genai SDK. Unlike the HTTP
// adapters it holds a long-lived client, so the constructor can fail.
type GeminiProvider struct {
	id      string
	models  []string
	maxTok  int
	temp    float64
	timeout time.Duration
	client  *genai.Client
}

// NewGeminiProvider builds the adapter from provider config.
// Constructors avoid taking a context, so client setup uses Background.
func NewGeminiProvider(cfg *config.ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q: gemini requires an api_key", cfg.ID)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: creating gemini client: %w", cfg.ID, err)
	}

	temp := 0.7
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}

	return &GeminiProvider{
		id:      cfg.ID,
		models:  modelCandidates(cfg),
		maxTok:  cfg.MaxTokens,
		temp:    temp,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		client:  client,
	}, nil
}

func (p *GeminiProvider) ID() string       { return p.id }
func (p *GeminiProvider) Adapter() string  { return string(config.AdapterGemini) }
func (p *GeminiProvider) Models() []string { return p.models }
func (p *GeminiProvider) Close() error     { return nil }

// Complete runs one non-streaming generation call.
func (p *GeminiProvider) Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	start := time.Now()
	tracer := observability.GetTracer("stentor.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrProviderID, p.id),
			attribute.String(observability.AttrLLMModel, req.Model),
			attribute.String("llm.adapter", "gemini"),
		),
	)
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	contents, genCfg := p.buildRequest(req)

	genResp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return nil, p.fail(ctx, span, req.Model, start, p.classify(err, req.Model))
	}

	text, inTok, outTok := parseGeminiResponse(genResp)
	if strings.TrimSpace(text) == "" {
		return nil, p.fail(ctx, span, req.Model, start, emptyResponseError(p.id, req.Model))
	}

	resp := &ModelResponse{
		Text:         text,
		Model:        req.Model,
		PromptTokens: inTok,
		OutputTokens: outTok,
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, resp.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, resp.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, resp.Model, time.Since(start), resp.PromptTokens, resp.OutputTokens, nil)
	return resp, nil
}

// Ping lists models to verify connectivity and key validity.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return p.classify(err, "")
	}
	return nil
}

// buildRequest converts the request to genai format. System turns
// collapse into the system instruction; assistant maps to "model".
func (p *GeminiProvider) buildRequest(req ModelRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	var system []string

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(orDefaultFloat(req.Temperature, p.temp))),
		MaxOutputTokens: int32(orDefaultInt(req.MaxTokens, p.maxTok)),
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
			Role:  "user",
		}
	}
	return contents, genCfg
}

func parseGeminiResponse(genResp *genai.GenerateContentResponse) (text string, inTok, outTok int) {
	if genResp == nil {
		return "", 0, 0
	}
	if genResp.UsageMetadata != nil {
		inTok = int(genResp.UsageMetadata.PromptTokenCount)
		outTok = int(genResp.UsageMetadata.CandidatesTokenCount)
	}
	if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil {
		return "", inTok, outTok
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), inTok, outTok
}

// classify maps SDK errors onto the shared failure taxonomy.
func (p *GeminiProvider) classify(err error, model string) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: p.id, Model: model, Reason: ReasonTimeout, Message: "request deadline exceeded", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ProviderError{Provider: p.id, Model: model, Reason: ReasonCancelled, Message: "request cancelled", Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		reason := reasonFromStatus(apiErr.Code)
		if reason == ReasonInvalidRequest && mentionsUnknownModel(apiErr.Message) {
			reason = ReasonModelUnavailable
		}
		return &ProviderError{
			Provider:   p.id,
			Model:      model,
			Reason:     reason,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	return &ProviderError{Provider: p.id, Model: model, Reason: ReasonTransport, Message: err.Error(), Err: err}
}

func (p *GeminiProvider) fail(ctx context.Context, span trace.Span, model string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.GetGlobalMetrics().RecordLLMCall(ctx, p.id, model, time.Since(start), 0, 0, err)
	return err
}

var _ Provider = (*GeminiProvider)(nil)
