package config

import (
	"os"
	"strings"
)

// ZeroConfigOptions are the CLI knobs honored when no configuration
// file is given.
type ZeroConfigOptions struct {
	// Provider adapter name. Defaults to ollama, or to the first
	// cloud adapter whose API key environment variable is set.
	Provider string

	// Model overrides the adapter's default model.
	Model string

	// BaseURL overrides the adapter's default endpoint.
	BaseURL string

	// APIKey for cloud adapters; usually taken from the environment.
	APIKey string
}

// Default models per adapter when zero-config picks one.
var zeroConfigModels = map[AdapterName]string{
	AdapterOllama:    "llama3.2",
	AdapterOpenAI:    "gpt-4o-mini",
	AdapterAnthropic: "claude-3-5-haiku-20241022",
	AdapterGemini:    "gemini-2.0-flash",
}

// Environment variables consulted for cloud adapter keys.
var adapterKeyEnvVars = map[AdapterName]string{
	AdapterOpenAI:    "OPENAI_API_KEY",
	AdapterAnthropic: "ANTHROPIC_API_KEY",
	AdapterGemini:    "GEMINI_API_KEY",
}

// ZeroConfig builds a complete runnable configuration without a
// document: one local provider, the built-in tools, and one agent per
// built-in class, all on defaults. The result goes through the same
// pipeline as a loaded file.
func ZeroConfig(opts ZeroConfigOptions) (*Config, error) {
	adapter := AdapterName(strings.ToLower(strings.TrimSpace(opts.Provider)))
	if adapter == "" {
		adapter = detectAdapter()
	}

	model := opts.Model
	if model == "" {
		model = zeroConfigModels[adapter]
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		if envVar, ok := adapterKeyEnvVars[adapter]; ok {
			apiKey = os.Getenv(envVar)
		}
	}

	provider := &ProviderConfig{
		ID:           "default",
		Adapter:      adapter,
		BaseURL:      opts.BaseURL,
		DefaultModel: model,
		APIKey:       apiKey,
		Primary:      true,
	}

	cfg := &Config{
		System: SystemConfig{
			Name:        "stentor",
			Environment: "development",
		},
		Providers: []*ProviderConfig{provider},
	}
	for _, class := range BuiltinAgentClasses {
		cfg.Agents = append(cfg.Agents, &AgentConfig{
			ID:    class,
			Class: class,
			Permissions: PermissionsConfig{
				ReadFile: class == "code_analyzer",
			},
		})
	}

	return ProcessConfigPipeline(cfg)
}

// detectAdapter prefers a cloud adapter whose key is present in the
// environment, otherwise assumes a local ollama.
func detectAdapter() AdapterName {
	for _, adapter := range []AdapterName{AdapterOpenAI, AdapterAnthropic, AdapterGemini} {
		if os.Getenv(adapterKeyEnvVars[adapter]) != "" {
			return adapter
		}
	}
	return AdapterOllama
}
