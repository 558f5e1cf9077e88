package main

import (
	"fmt"
	"log/slog"

	"github.com/stentorlabs/stentor/pkg/config"
)

// zeroConfigFlags are the provider knobs honored only when no --config
// is given. The serve and chat commands share them.
type zeroConfigFlags struct {
	Provider string `help:"Zero-config provider adapter (ollama, openai, anthropic, gemini)."`
	Model    string `help:"Zero-config model name."`
	APIKey   string `name:"api-key" help:"Zero-config API key (defaults to the adapter's environment variable)."`
	BaseURL  string `name:"base-url" help:"Zero-config endpoint URL."`
}

func (z zeroConfigFlags) set() bool {
	return z.Provider != "" || z.Model != "" || z.APIKey != "" || z.BaseURL != ""
}

// loadGatewayConfig resolves the gateway configuration: a document
// from the configured source, or zero-config defaults when no path is
// given. The returned loader is non-nil only for watched sources.
func loadGatewayConfig(cli *CLI, zc zeroConfigFlags) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		if cli.Watch {
			return nil, nil, fmt.Errorf("--watch requires --config")
		}
		cfg, err := config.ZeroConfig(config.ZeroConfigOptions{
			Provider: zc.Provider,
			Model:    zc.Model,
			APIKey:   zc.APIKey,
			BaseURL:  zc.BaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("building zero config: %w", err)
		}
		pc := cfg.Providers[0]
		slog.Info("No configuration given, using zero-config defaults",
			"adapter", string(pc.Adapter), "model", pc.DefaultModel)
		return cfg, nil, nil
	}

	if zc.set() {
		return nil, nil, fmt.Errorf("zero-config flags cannot be combined with --config")
	}

	source, err := config.ParseSourceType(cli.Source)
	if err != nil {
		return nil, nil, err
	}

	cfg, loader, err := config.LoadConfigWithLoader(config.LoaderOptions{
		Source:    source,
		Path:      cli.Config,
		Endpoints: cli.Endpoints,
		Watch:     cli.Watch,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	slog.Info("Configuration loaded", "source", string(source), "path", cli.Config, "watch", cli.Watch)
	return cfg, loader, nil
}
