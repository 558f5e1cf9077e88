// Package runtime assembles the configured subsystems into one
// process-lifetime core. A reload builds a complete replacement
// snapshot off to the side and swaps it behind a lock, so every
// request finishes against the config it started with. Sessions,
// the provider cascade's breaker state, observability, and the event
// log live on the core and survive reloads.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stentorlabs/stentor/pkg/agents"
	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/decision"
	"github.com/stentorlabs/stentor/pkg/knowledge"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/orchestrator"
	"github.com/stentorlabs/stentor/pkg/sequence"
	"github.com/stentorlabs/stentor/pkg/session"
	"github.com/stentorlabs/stentor/pkg/tools"
)

// Options configures a Core.
type Options struct {
	// Config is the starting configuration. Required.
	Config *config.Config

	// Loader, when set, is watched for changes: every accepted change
	// becomes a Reload. The core stops the loader on Close.
	Loader *config.Loader

	// Events receives every structured event. When nil the core builds
	// one sized by the logging config.
	Events *logger.EventLog
}

// Core owns the wiring between config and the serving subsystems.
// Everything on the struct outlives reloads; everything per-config
// lives on the snapshot behind mu.
type Core struct {
	events   *logger.EventLog
	obs      *observability.Manager
	sessions *session.Service
	casc     *cascade.Cascade
	loader   *config.Loader

	mu   sync.RWMutex
	snap *snapshot
}

// snapshot is one immutable view of the configured world. It is built
// completely before it becomes visible and is never mutated after.
type snapshot struct {
	cfg       *config.Config
	casc      *cascade.Cascade
	providers *llms.Registry
	tools     *tools.Registry
	agents    *agents.Registry
	knowledge *knowledge.Registry
	sequences *sequence.Executor
	decider   *decision.Engine
	orch      *orchestrator.Orchestrator
	monitor   *cascade.HealthMonitor
}

// New builds and starts a core from opts. Construction is all-or-
// nothing: a config that cannot produce a working snapshot fails here
// rather than at the first request.
func New(ctx context.Context, opts Options) (*Core, error) {
	cfg, err := config.ProcessConfigPipeline(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	events := opts.Events
	if events == nil {
		events = logger.NewEventLog(logger.Options{RingSize: cfg.Logging.RingSize})
	}

	obs := observability.NoopManager()
	if cfg.Observability != nil {
		obs = observability.NewManager(*cfg.Observability)
	}
	if err := obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}

	c := &Core{
		events:   events,
		obs:      obs,
		sessions: session.NewService(cfg.History),
	}

	providers, err := loadProviders(cfg)
	if err != nil {
		return nil, err
	}
	c.casc = cascade.New(cfg, providers, events)

	snap, err := c.buildSnapshot(cfg, providers)
	if err != nil {
		_ = providers.CloseAll()
		return nil, err
	}
	c.snap = snap
	// Probe loops outlive the caller's ctx; Stop ends them on reload
	// or Close.
	snap.monitor.Start(context.Background())

	if opts.Loader != nil {
		c.loader = opts.Loader
		c.loader.SetOnChange(func(next *config.Config) error {
			return c.Reload(context.Background(), next)
		})
	}

	events.Info(logger.CategorySystem, "", "runtime ready", map[string]any{
		"providers":       len(cfg.Providers),
		"tools":           snap.tools.Count(),
		"agents":          snap.agents.Count(),
		"knowledge_bases": snap.knowledge.Count(),
	})
	return c, nil
}

// Chat serves one request against the current snapshot. The read lock
// is held for the whole request, so a concurrent reload waits for
// in-flight requests to drain before retiring their snapshot.
func (c *Core) Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.orch.Chat(ctx, req)
}

// Reload replaces the running snapshot with one built from next. The
// old snapshot keeps serving until the new one is fully built; any
// build error leaves it untouched. Breaker state survives for provider
// ids present on both sides. Sessions always survive; history limits
// from the old config keep applying to them.
func (c *Core) Reload(ctx context.Context, next *config.Config) error {
	cfg, err := config.ProcessConfigPipeline(next)
	if err != nil {
		c.events.Error(logger.CategorySystem, "", "config reload rejected: "+err.Error(), nil)
		return fmt.Errorf("invalid config: %w", err)
	}

	providers, err := loadProviders(cfg)
	if err != nil {
		return err
	}
	snap, err := c.buildSnapshot(cfg, providers)
	if err != nil {
		_ = providers.CloseAll()
		c.events.Error(logger.CategorySystem, "", "config reload failed: "+err.Error(), nil)
		return err
	}

	c.mu.Lock()
	old := c.snap
	c.casc.Rewire(cfg, providers)
	c.snap = snap
	c.mu.Unlock()
	snap.monitor.Start(context.Background())

	// No reader can still hold old: the write lock waited them out.
	if err := c.closeSnapshot(old); err != nil {
		c.events.Warn(logger.CategorySystem, "", "closing retired snapshot: "+err.Error(), nil)
	}

	c.events.Info(logger.CategorySystem, "", "configuration reloaded", map[string]any{
		"version":   cfg.System.Version,
		"providers": len(cfg.Providers),
		"tools":     snap.tools.Count(),
		"agents":    snap.agents.Count(),
	})
	return nil
}

// Close stops the loader first so no reload lands mid-shutdown, then
// releases the snapshot's resources and the observability exporters.
func (c *Core) Close(ctx context.Context) error {
	if c.loader != nil {
		c.loader.Stop()
	}

	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()

	var errs []error
	if snap != nil {
		errs = append(errs, c.closeSnapshot(snap))
	}
	errs = append(errs, c.obs.Shutdown(ctx))
	return errors.Join(errs...)
}

// Events returns the process event log.
func (c *Core) Events() *logger.EventLog { return c.events }

// Observability returns the process observability manager.
func (c *Core) Observability() *observability.Manager { return c.obs }

// Config returns the currently served configuration.
func (c *Core) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.cfg
}

func loadProviders(cfg *config.Config) (*llms.Registry, error) {
	providers := llms.NewRegistry()
	if err := providers.LoadFromConfig(cfg.Providers); err != nil {
		return nil, fmt.Errorf("loading providers: %w", err)
	}
	return providers, nil
}

// buildSnapshot constructs every per-config subsystem. It only reads
// from the core (cascade, sessions, events), so it is safe to run
// while the previous snapshot serves requests.
func (c *Core) buildSnapshot(cfg *config.Config, providers *llms.Registry) (*snapshot, error) {
	toolReg := tools.NewRegistry()
	if err := toolReg.LoadFromConfig(cfg.Tools); err != nil {
		return nil, fmt.Errorf("loading tools: %w", err)
	}

	agentReg := agents.NewRegistry()
	if err := agentReg.LoadFromConfig(cfg.Agents); err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}

	retriever, err := knowledge.NewRetriever(cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("building retriever: %w", err)
	}
	kb := knowledge.NewRegistry(retriever)
	if err := kb.LoadFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading knowledge bases: %w", err)
	}

	decider, err := decision.NewEngine(cfg.Decision, c.casc, c.events)
	if err != nil {
		return nil, fmt.Errorf("building decision engine: %w", err)
	}

	snap := &snapshot{
		cfg:       cfg,
		casc:      c.casc,
		providers: providers,
		tools:     toolReg,
		agents:    agentReg,
		knowledge: kb,
		sequences: sequence.NewExecutor(toolReg, c.casc, c.events),
		decider:   decider,
		monitor:   cascade.NewHealthMonitor(cfg.Providers, providers, c.events),
	}

	deps := orchestrator.Deps{
		Config:   cfg,
		Decider:  decider,
		Sessions: c.sessions,
		LLM:      c.casc,
		Tools:    toolReg,
		Agents:   &agentRunner{snap: snap},
		Events:   c.events,
	}
	// A nil Knowledge keeps rag dispatch on its degrade path; an empty
	// registry would report "no relevant context" instead.
	if len(cfg.KnowledgeBases) > 0 {
		deps.Knowledge = kb
	}
	snap.orch = orchestrator.New(deps)

	return snap, nil
}

func (c *Core) closeSnapshot(snap *snapshot) error {
	snap.monitor.Stop()
	return errors.Join(
		snap.agents.Shutdown(),
		snap.knowledge.CloseAll(),
		snap.providers.CloseAll(),
	)
}
