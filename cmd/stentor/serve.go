package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/runtime"
	"github.com/stentorlabs/stentor/pkg/server"
)

// ServeCmd starts the HTTP gateway.
type ServeCmd struct {
	zeroConfigFlags

	// Listener overrides.
	Host string `help:"Listen host (overrides config)."`
	Port int    `help:"Listen port (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := loadGatewayConfig(cli, c.zeroConfigFlags)
	if err != nil {
		return err
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	core, err := runtime.New(ctx, runtime.Options{Config: cfg, Loader: loader})
	if err != nil {
		if loader != nil {
			loader.Stop()
		}
		return fmt.Errorf("starting runtime: %w", err)
	}

	deps := server.Deps{
		Config: cfg.Server,
		Chat:   core,
		Status: core,
		Events: core.Events(),
	}
	if core.Observability().MetricsEnabled() {
		deps.Metrics = core.Observability().MetricsHandler()
	}
	srv := server.New(deps)

	printStartupInfo(cfg, srv, deps.Metrics != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})

	err = g.Wait()
	if closeErr := core.Close(context.Background()); err == nil {
		err = closeErr
	}
	return err
}

func printStartupInfo(cfg *config.Config, srv *server.Server, metrics bool) {
	accent := "\033[38;2;245;158;11m"
	reset := "\033[0m"

	fmt.Printf("\n%sStentor gateway ready%s\n", accent, reset)
	fmt.Printf("   Chat:        http://%s/chat\n", srv.Addr())
	fmt.Printf("   Health:      http://%s/health\n", srv.Addr())
	fmt.Printf("   Log stream:  http://%s/logs/stream\n", srv.Addr())
	fmt.Printf("   Listings:    http://%s/tools, /agents, /providers\n", srv.Addr())
	if metrics {
		fmt.Printf("   Metrics:     http://%s/metrics\n", srv.Addr())
	}

	fmt.Println("\n   Providers (cascade order):")
	for _, pc := range cfg.CascadeOrder() {
		fmt.Printf("     - %s (%s %s)\n", pc.ID, pc.Type, pc.Adapter)
	}

	if len(cfg.KnowledgeBases) > 0 {
		fmt.Println("\n   Knowledge bases:")
		for _, kb := range cfg.KnowledgeBases {
			if kb != nil && kb.IsEnabled() {
				fmt.Printf("     - %s (%s)\n", kb.ID, kb.Store.Backend)
			}
		}
	}

	fmt.Println("\nPress Ctrl+C to stop")
}
