// Package llms contains the chat completion adapters behind the
// provider cascade. Each adapter speaks one wire protocol (ollama,
// openai, anthropic, gemini) and normalizes requests, responses, and
// failures to a shared shape so the cascade can treat providers
// uniformly.
package llms

import (
	"context"
	"fmt"
)

// Message roles. The orchestrator builds conversations from these;
// adapters translate them to the provider's dialect.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelRequest is a normalized completion request. Model is the
// concrete model id to call; candidate iteration happens in the
// cascade, not the adapter.
type ModelRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ModelResponse is a normalized completion response. Token counts are
// zero when the provider does not report usage.
type ModelResponse struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// Provider is one endpoint in the cascade.
type Provider interface {
	// ID returns the configured provider id.
	ID() string

	// Adapter names the wire protocol.
	Adapter() string

	// Models returns candidate model ids, default model first.
	Models() []string

	// Complete performs one generation attempt. Failures are returned
	// as *ProviderError whenever the adapter can classify them.
	Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error)

	// Ping probes the endpoint for liveness.
	Ping(ctx context.Context) error

	// Close releases adapter resources.
	Close() error
}

// FailReason classifies why an attempt failed. The cascade uses it to
// decide between advancing the model and advancing the provider, and it
// appears verbatim in attempt records.
type FailReason string

const (
	ReasonTimeout          FailReason = "timeout"
	ReasonTransport        FailReason = "transport"
	ReasonRateLimit        FailReason = "rate_limit"
	ReasonAuth             FailReason = "auth"
	ReasonModelUnavailable FailReason = "model_unavailable"
	ReasonServerError      FailReason = "server_error"
	ReasonInvalidRequest   FailReason = "invalid_request"
	ReasonEmptyResponse    FailReason = "empty_response"
	ReasonCancelled        FailReason = "cancelled"
)

// ProviderError is a classified attempt failure.
type ProviderError struct {
	Provider   string
	Model      string
	Reason     FailReason
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s model %s: %s (HTTP %d): %s", e.Provider, e.Model, e.Reason, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %s model %s: %s: %s", e.Provider, e.Model, e.Reason, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }
