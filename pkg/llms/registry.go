package llms

import (
	"fmt"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/registry"
)

// Registry holds the constructed providers keyed by provider id.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// NewProvider constructs the adapter named by the config. It does not
// touch the network; remote failures surface on first use.
func NewProvider(cfg *config.ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("provider config cannot be nil")
	}

	switch cfg.Adapter {
	case config.AdapterOllama:
		return NewOllamaProvider(cfg), nil
	case config.AdapterOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.AdapterAnthropic:
		return NewAnthropicProvider(cfg), nil
	case config.AdapterGemini:
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported adapter: %s (supported: ollama, openai, anthropic, gemini)", cfg.Adapter)
	}
}

// LoadFromConfig constructs and registers every enabled provider.
// A provider that fails to construct is recorded and skipped, so one
// bad entry cannot block the rest of the cascade.
func (r *Registry) LoadFromConfig(cfgs []*config.ProviderConfig) error {
	for _, cfg := range cfgs {
		if cfg == nil || !cfg.IsEnabled() {
			continue
		}

		provider, err := NewProvider(cfg)
		if err != nil {
			r.RecordFailure(cfg.ID, err)
			continue
		}
		if err := r.Register(cfg.ID, provider); err != nil {
			return fmt.Errorf("registering provider %q: %w", cfg.ID, err)
		}
	}
	return nil
}

// GetProvider resolves a provider by id, failing loudly when missing
// or disabled.
func (r *Registry) GetProvider(id string) (Provider, error) {
	provider, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("provider %q not found", id)
	}
	return provider, nil
}

// CloseAll releases every registered provider.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, p := range r.ListAll() {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
