package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/orchestrator"
	"github.com/stentorlabs/stentor/pkg/server"
)

func quietEvents() *logger.EventLog {
	return logger.NewEventLog(logger.Options{
		RingSize: 256,
		Console:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// testConfig builds a config whose single provider points at a closed
// port, so nothing in these tests reaches a network service.
func testConfig(version string) *config.Config {
	return &config.Config{
		System: config.SystemConfig{Name: "stentor-test", Version: version},
		Providers: []*config.ProviderConfig{{
			ID:      "primary",
			Adapter: config.AdapterOllama,
			BaseURL: "http://127.0.0.1:1",
			Models:  []string{"llama3"},
		}},
	}
}

func newCore(t *testing.T, cfg *config.Config) *Core {
	t.Helper()
	core, err := New(context.Background(), Options{Config: cfg, Events: quietEvents()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(context.Background()) })
	return core
}

func componentIDs(list []server.ComponentStatus) []string {
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestNewServesCommands(t *testing.T) {
	core := newCore(t, testConfig("1.0.0"))

	resp, err := core.Chat(context.Background(), orchestrator.ChatRequest{Message: "/help"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.OK)
	assert.Equal(t, orchestrator.StrategyCommand, resp.Strategy)
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.Text, "/help")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("1.0.0")
	cfg.Providers = append(cfg.Providers, &config.ProviderConfig{
		ID:      "primary",
		Adapter: config.AdapterOllama,
		Models:  []string{"llama3"},
	})

	_, err := New(context.Background(), Options{Config: cfg, Events: quietEvents()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestHealthReportsVersionAndBreakers(t *testing.T) {
	core := newCore(t, testConfig("1.4.0"))

	h := core.Health(context.Background())
	assert.Equal(t, server.StatusOK, h.Status)
	assert.Equal(t, "1.4.0", h.Components.Config.Version)
	assert.True(t, h.Components.VectorStore.Reachable)
	assert.Empty(t, h.Components.VectorStore.Stores)

	breakers := h.Components.ProviderCascade.Breakers
	require.Len(t, breakers, 1)
	assert.Equal(t, "primary", breakers[0].Provider)
	assert.Equal(t, cascade.StateClosed, breakers[0].State)
}

func TestListingsCoverBuiltins(t *testing.T) {
	core := newCore(t, testConfig("1.0.0"))

	toolList := core.Tools()
	toolIDs := componentIDs(toolList)
	assert.Contains(t, toolIDs, "calculator")
	assert.Contains(t, toolIDs, "json_parser")
	for _, c := range toolList {
		assert.True(t, c.Enabled, c.ID)
		assert.NotEmpty(t, c.Description, c.ID)
	}

	agentIDs := componentIDs(core.Agents())
	assert.Contains(t, agentIDs, "code_analyzer")
	assert.Contains(t, agentIDs, "data_processor")
	assert.Contains(t, agentIDs, "task_manager")

	providers := core.Providers()
	require.Len(t, providers, 1)
	assert.Equal(t, "primary", providers[0].ID)
	assert.Equal(t, "local ollama provider", providers[0].Description)
	assert.True(t, providers[0].Enabled)
	require.NotNil(t, providers[0].Metrics)
	snap, ok := providers[0].Metrics.(cascade.BreakerSnapshot)
	require.True(t, ok)
	assert.Equal(t, cascade.StateClosed, snap.State)
}

func TestReloadSwapsSnapshot(t *testing.T) {
	core := newCore(t, testConfig("1.0.0"))
	ctx := context.Background()

	next := testConfig("2.0.0")
	next.Providers = append(next.Providers, &config.ProviderConfig{
		ID:      "backup",
		Adapter: config.AdapterOllama,
		BaseURL: "http://127.0.0.1:1",
		Models:  []string{"llama3"},
	})
	next.Tools = []*config.ToolConfig{{ID: "calculator", Enabled: config.BoolPtr(false)}}

	require.NoError(t, core.Reload(ctx, next))

	h := core.Health(ctx)
	assert.Equal(t, "2.0.0", h.Components.Config.Version)
	assert.Len(t, h.Components.ProviderCascade.Breakers, 2)

	for _, tool := range core.Tools() {
		if tool.ID == "calculator" {
			assert.False(t, tool.Enabled)
		}
	}

	resp, err := core.Chat(ctx, orchestrator.ChatRequest{Message: "/help"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestReloadRejectsInvalidConfigKeepsServing(t *testing.T) {
	core := newCore(t, testConfig("1.0.0"))
	ctx := context.Background()

	bad := testConfig("3.0.0")
	bad.Server.Port = -1

	require.Error(t, core.Reload(ctx, bad))

	h := core.Health(ctx)
	assert.Equal(t, "1.0.0", h.Components.Config.Version)

	resp, err := core.Chat(ctx, orchestrator.ChatRequest{Message: "/help"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestReloadUnderLoad(t *testing.T) {
	core := newCore(t, testConfig("1.0.0"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				resp, err := core.Chat(ctx, orchestrator.ChatRequest{Message: "/help"})
				assert.NoError(t, err)
				if assert.NotNil(t, resp) {
					assert.True(t, resp.OK)
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, core.Reload(ctx, testConfig(fmt.Sprintf("1.0.%d", i+1))))
	}
	wg.Wait()

	assert.Equal(t, "1.0.5", core.Config().System.Version)
}

func TestHealthProbesFeedHealth(t *testing.T) {
	cfg := testConfig("1.0.0")
	cfg.Providers[0].HealthCheck = config.HealthCheckConfig{
		Enabled:    true,
		IntervalMS: 60000,
		TimeoutMS:  500,
	}
	core := newCore(t, cfg)

	// The first probe fires on Start; poll until its outcome lands.
	deadline := time.Now().Add(3 * time.Second)
	for {
		h := core.Health(context.Background())
		probes := h.Components.ProviderCascade.Providers
		if len(probes) == 1 {
			assert.Equal(t, "primary", probes[0].ProviderID)
			assert.False(t, probes[0].Healthy)
			assert.NotEmpty(t, probes[0].LastError)
			assert.Equal(t, server.StatusDegraded, h.Status)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no probe outcome before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCloseReleasesResources(t *testing.T) {
	core, err := New(context.Background(), Options{Config: testConfig("1.0.0"), Events: quietEvents()})
	require.NoError(t, err)

	require.NoError(t, core.Close(context.Background()))
}
