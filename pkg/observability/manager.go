package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider and the metrics recorder for one
// process. A zero-initialized Manager (or one whose Initialize was
// never called) hands out noop implementations.
type Manager struct {
	cfg            Config
	tracerProvider trace.TracerProvider
	metrics        Metrics
	prom           *PrometheusMetrics
}

// NewManager builds a Manager for cfg. Nothing is started until
// Initialize is called.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:            cfg,
		tracerProvider: noop.NewTracerProvider(),
		metrics:        NoopMetrics{},
	}
}

// NoopManager returns a Manager with everything disabled, for tests
// and embedded use.
func NoopManager() *Manager {
	return NewManager(Config{})
}

// Initialize starts the configured exporters. Safe to call with both
// sections disabled.
func (m *Manager) Initialize(ctx context.Context) error {
	tp, err := InitGlobalTracer(ctx, m.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	m.tracerProvider = tp

	prom, err := InitMetrics(m.cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if prom != nil {
		m.prom = prom
		m.metrics = prom
		SetGlobalMetrics(prom)
	}
	return nil
}

// GetTracer returns a named tracer from this manager's provider.
func (m *Manager) GetTracer(name string) trace.Tracer {
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the active recorder, never nil.
func (m *Manager) GetMetrics() Metrics {
	return m.metrics
}

// MetricsEnabled reports whether a Prometheus endpoint should be
// mounted.
func (m *Manager) MetricsEnabled() bool {
	return m.prom != nil
}

// MetricsPath is the HTTP path the exposition handler is mounted on.
func (m *Manager) MetricsPath() string {
	if m.cfg.Metrics.Endpoint != "" {
		return m.cfg.Metrics.Endpoint
	}
	return DefaultMetricsPath
}

// MetricsHandler returns the exposition handler, or a 503 handler when
// metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m.prom != nil {
		return m.prom.Handler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics are not enabled", http.StatusServiceUnavailable)
	})
}

// Shutdown flushes and stops every exporter the manager started.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		if err := sd.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := m.prom.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	return errors.Join(errs...)
}
