package cascade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/llms"
	"github.com/stentorlabs/stentor/pkg/logger"
)

// ProviderHealth is the latest probe outcome for one provider.
type ProviderHealth struct {
	ProviderID  string    `json:"provider_id"`
	Healthy     bool      `json:"healthy"`
	LastChecked time.Time `json:"last_checked"`
	LastError   string    `json:"last_error,omitempty"`
}

type probe struct {
	id       string
	interval time.Duration
	timeout  time.Duration
}

// HealthMonitor pings providers with health checks enabled on their
// configured interval and keeps the latest outcome for /health.
type HealthMonitor struct {
	mu       sync.RWMutex
	registry *llms.Registry
	events   *logger.EventLog
	status   map[string]*ProviderHealth
	probes   []probe

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHealthMonitor(cfgs []*config.ProviderConfig, registry *llms.Registry, events *logger.EventLog) *HealthMonitor {
	m := &HealthMonitor{
		registry: registry,
		events:   events,
		status:   make(map[string]*ProviderHealth),
	}
	for _, pc := range cfgs {
		if pc == nil || !pc.IsEnabled() || !pc.HealthCheck.Enabled {
			continue
		}
		m.probes = append(m.probes, probe{
			id:       pc.ID,
			interval: time.Duration(pc.HealthCheck.IntervalMS) * time.Millisecond,
			timeout:  time.Duration(pc.HealthCheck.TimeoutMS) * time.Millisecond,
		})
	}
	return m
}

// Start launches one probe loop per monitored provider. Each loop
// probes immediately, then on its interval, until Stop or ctx expiry.
func (m *HealthMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, p := range m.probes {
		m.wg.Add(1)
		go func(p probe) {
			defer m.wg.Done()

			m.probeOnce(ctx, p)
			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.probeOnce(ctx, p)
				}
			}
		}(p)
	}
}

// Stop cancels every probe loop and waits for them to exit.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Snapshot returns the latest probe outcomes sorted by provider id.
// Providers not yet probed are absent.
func (m *HealthMonitor) Snapshot() []ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(m.status))
	for _, h := range m.status {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

func (m *HealthMonitor) probeOnce(ctx context.Context, p probe) {
	provider, ok := m.registry.Get(p.id)
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := provider.Ping(probeCtx)
	cancel()

	h := &ProviderHealth{
		ProviderID:  p.id,
		Healthy:     err == nil,
		LastChecked: time.Now(),
	}
	if err != nil {
		h.LastError = err.Error()
	}

	m.mu.Lock()
	prev := m.status[p.id]
	m.status[p.id] = h
	m.mu.Unlock()

	// Log transitions only; steady state would flood the ring.
	switch {
	case err != nil && (prev == nil || prev.Healthy):
		m.events.Warn(logger.CategoryProvider, "", fmt.Sprintf("provider %s unhealthy: %v", p.id, err),
			map[string]any{"provider_id": p.id})
	case err == nil && prev != nil && !prev.Healthy:
		m.events.Info(logger.CategoryProvider, "", fmt.Sprintf("provider %s recovered", p.id),
			map[string]any{"provider_id": p.id})
	}
}
