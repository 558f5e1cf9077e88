package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hideCloudKeys blanks every cloud key so adapter detection lands on
// the local default regardless of the host environment.
func hideCloudKeys(t *testing.T) {
	t.Helper()
	for _, envVar := range adapterKeyEnvVars {
		t.Setenv(envVar, "")
	}
}

func TestZeroConfigDefaultsToOllama(t *testing.T) {
	hideCloudKeys(t)

	cfg, err := ZeroConfig(ZeroConfigOptions{})
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "default", p.ID)
	assert.Equal(t, AdapterOllama, p.Adapter)
	assert.Equal(t, "llama3.2", p.DefaultModel)
	assert.Equal(t, ProviderLocal, p.Type)
	assert.True(t, p.Primary)

	var classes []string
	for _, a := range cfg.Agents {
		classes = append(classes, a.Class)
	}
	assert.ElementsMatch(t, BuiltinAgentClasses, classes, "one agent per built-in class")

	analyzer, ok := cfg.AgentByID("code_analyzer")
	require.True(t, ok)
	assert.True(t, analyzer.Permissions.ReadFile)

	processor, ok := cfg.AgentByID("data_processor")
	require.True(t, ok)
	assert.False(t, processor.Permissions.ReadFile)

	assert.Equal(t, 60000, cfg.System.RequestTimeoutMS, "result went through the pipeline")
}

func TestZeroConfigDetectsCloudKey(t *testing.T) {
	hideCloudKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := ZeroConfig(ZeroConfigOptions{})
	require.NoError(t, err)

	p := cfg.Providers[0]
	assert.Equal(t, AdapterAnthropic, p.Adapter)
	assert.Equal(t, "claude-3-5-haiku-20241022", p.DefaultModel)
	assert.Equal(t, "sk-ant-test", p.APIKey)
	assert.Equal(t, ProviderCloud, p.Type)
}

func TestZeroConfigHonorsOverrides(t *testing.T) {
	hideCloudKeys(t)

	cfg, err := ZeroConfig(ZeroConfigOptions{
		Provider: "OpenAI",
		Model:    "gpt-4o",
		BaseURL:  "https://proxy.internal/v1",
		APIKey:   "sk-explicit",
	})
	require.NoError(t, err)

	p := cfg.Providers[0]
	assert.Equal(t, AdapterOpenAI, p.Adapter, "adapter names are case-insensitive")
	assert.Equal(t, "gpt-4o", p.DefaultModel)
	assert.Equal(t, "https://proxy.internal/v1", p.BaseURL)
	assert.Equal(t, "sk-explicit", p.APIKey)
}

func TestZeroConfigRejectsUnknownAdapter(t *testing.T) {
	hideCloudKeys(t)

	_, err := ZeroConfig(ZeroConfigOptions{Provider: "bedrock"})
	require.Error(t, err)
}
