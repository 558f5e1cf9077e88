// Package server exposes the orchestrator over HTTP: the chat endpoint,
// a live SSE log stream, health, registry introspection, and the
// Prometheus exposition handler when metrics are enabled.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/knowledge"
	"github.com/stentorlabs/stentor/pkg/logger"
	"github.com/stentorlabs/stentor/pkg/orchestrator"
)

// ChatService handles one chat turn. *orchestrator.Orchestrator
// satisfies it.
type ChatService interface {
	Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error)
}

// StatusReporter supplies the health and introspection endpoints. The
// runtime implements it over its registries.
type StatusReporter interface {
	Health(ctx context.Context) Health
	Tools() []ComponentStatus
	Agents() []ComponentStatus
	Providers() []ComponentStatus
}

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Health is the /health response document.
type Health struct {
	Status     string           `json:"status"`
	Components HealthComponents `json:"components"`
}

type HealthComponents struct {
	ProviderCascade CascadeHealth `json:"provider_cascade"`
	VectorStore     VectorHealth  `json:"vector_store"`
	Config          ConfigHealth  `json:"config"`
}

type CascadeHealth struct {
	Breakers []cascade.BreakerSnapshot `json:"breakers"`

	// Providers carries the latest health-probe outcomes, absent when
	// no provider has probes enabled.
	Providers []cascade.ProviderHealth `json:"providers,omitempty"`
}

type VectorHealth struct {
	Reachable bool                 `json:"reachable"`
	Stores    []knowledge.KBHealth `json:"stores,omitempty"`
}

type ConfigHealth struct {
	Version string `json:"version"`
}

// ComponentStatus is one entry in a registry listing response.
type ComponentStatus struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Metrics     any    `json:"metrics,omitempty"`
}

// Deps carries everything the server serves. Metrics may be nil, which
// leaves /metrics unmounted.
type Deps struct {
	Config  config.ServerConfig
	Chat    ChatService
	Status  StatusReporter
	Events  *logger.EventLog
	Metrics http.Handler
}

// Server is the HTTP front of the process. One instance serves one
// listener; Shutdown drains requests and ends open log streams.
type Server struct {
	cfg     config.ServerConfig
	chat    ChatService
	status  StatusReporter
	events  *logger.EventLog
	metrics http.Handler

	httpServer *http.Server

	// done ends open SSE streams so Shutdown's drain can complete.
	done     chan struct{}
	doneOnce sync.Once
}

func New(d Deps) *Server {
	cfg := d.Config
	cfg.SetDefaults()

	s := &Server{
		cfg:     cfg,
		chat:    d.Chat,
		status:  d.Status,
		events:  d.Events,
		metrics: d.Metrics,
		done:    make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Address(),
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.observeMiddleware)
	r.Use(s.recoverMiddleware)
	if s.cfg.CORSEnabled() {
		r.Use(corsMiddleware)
	}

	r.Post("/chat", s.handleChat)
	r.Get("/logs/stream", s.handleLogStream)
	r.Get("/health", s.handleHealth)
	r.Get("/tools", s.handleTools)
	r.Get("/agents", s.handleAgents)
	r.Get("/providers", s.handleProviders)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.ServeHTTP)
	}

	return r
}

// Handler returns the routed handler, primarily for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the bind address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving the listener until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.events.Info(logger.CategorySystem, "", "http server listening on "+s.httpServer.Addr, nil)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests,
// waiting at most the configured grace window.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })

	grace := time.Duration(s.cfg.ShutdownGraceMS) * time.Millisecond
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		// Drain window elapsed; close lingering connections outright.
		_ = s.httpServer.Close()
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
