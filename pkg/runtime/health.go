package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/stentorlabs/stentor/pkg/cascade"
	"github.com/stentorlabs/stentor/pkg/server"
)

// Health reports the serving state for the health endpoint. An open
// breaker or an unreachable store degrades the status; neither fails
// it, because the cascade and partial retrieval keep the system
// answering.
func (c *Core) Health(ctx context.Context) server.Health {
	snap := c.current()

	breakers := c.casc.Breakers()
	probes := snap.monitor.Snapshot()
	stores := snap.knowledge.Health(ctx)

	status := server.StatusOK
	for _, b := range breakers {
		if b.State == cascade.StateOpen {
			status = server.StatusDegraded
		}
	}
	for _, p := range probes {
		if !p.Healthy {
			status = server.StatusDegraded
		}
	}
	reachable := true
	for _, s := range stores {
		if !s.Reachable {
			reachable = false
			status = server.StatusDegraded
		}
	}

	return server.Health{
		Status: status,
		Components: server.HealthComponents{
			ProviderCascade: server.CascadeHealth{Breakers: breakers, Providers: probes},
			VectorStore:     server.VectorHealth{Reachable: reachable, Stores: stores},
			Config:          server.ConfigHealth{Version: snap.cfg.System.Version},
		},
	}
}

// Tools lists every registered tool, disabled ones included.
func (c *Core) Tools() []server.ComponentStatus {
	snap := c.current()

	out := make([]server.ComponentStatus, 0, snap.tools.Count())
	for _, t := range snap.tools.ListAll() {
		out = append(out, server.ComponentStatus{
			ID:          t.ID(),
			Description: t.Descriptor().Description,
			Enabled:     snap.tools.IsEnabled(t.ID()),
		})
	}
	sortByID(out)
	return out
}

// Agents lists every registered agent with its invocation metrics.
func (c *Core) Agents() []server.ComponentStatus {
	snap := c.current()

	out := make([]server.ComponentStatus, 0, snap.agents.Count())
	for _, a := range snap.agents.ListAll() {
		status := server.ComponentStatus{
			ID:          a.ID(),
			Description: a.Descriptor().Description,
			Enabled:     snap.agents.IsEnabled(a.ID()),
		}
		if m, ok := snap.agents.MetricsFor(a.ID()); ok {
			status.Metrics = m
		}
		out = append(out, status)
	}
	sortByID(out)
	return out
}

// Providers lists the configured cascade in declaration order,
// disabled entries included. Each enabled provider carries its breaker
// snapshot as metrics.
func (c *Core) Providers() []server.ComponentStatus {
	snap := c.current()

	breakers := make(map[string]cascade.BreakerSnapshot)
	for _, b := range c.casc.Breakers() {
		breakers[b.Provider] = b
	}

	out := make([]server.ComponentStatus, 0, len(snap.cfg.Providers))
	for _, pc := range snap.cfg.Providers {
		if pc == nil {
			continue
		}
		status := server.ComponentStatus{
			ID:          pc.ID,
			Description: fmt.Sprintf("%s %s provider", pc.Type, pc.Adapter),
			Enabled:     pc.IsEnabled(),
		}
		if b, ok := breakers[pc.ID]; ok {
			status.Metrics = b
		}
		out = append(out, status)
	}
	return out
}

func (c *Core) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func sortByID(list []server.ComponentStatus) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
