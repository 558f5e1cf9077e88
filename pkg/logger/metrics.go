package logger

import (
	"sync"
	"time"
)

// ComponentStats are the rolling counters kept per component.
type ComponentStats struct {
	TotalCalls    uint64 `json:"total_calls"`
	Successes     uint64 `json:"successes"`
	Failures      uint64 `json:"failures"`
	SumDurationMS int64  `json:"sum_duration_ms"`
	CountForAvg   uint64 `json:"count_for_avg"`
}

// AverageDurationMS derives the mean call duration; zero when nothing ran.
func (s ComponentStats) AverageDurationMS() float64 {
	if s.CountForAvg == 0 {
		return 0
	}
	return float64(s.SumDurationMS) / float64(s.CountForAvg)
}

// Metrics tracks per-component call counters plus free-form named counters
// (cache hits and the like). Snapshots are copies; callers cannot mutate
// live state through them.
type Metrics struct {
	mu         sync.RWMutex
	components map[string]*ComponentStats
	counters   map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		components: make(map[string]*ComponentStats),
		counters:   make(map[string]uint64),
	}
}

// Record accumulates one call outcome for a component.
func (m *Metrics) Record(component string, duration time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.components[component]
	if !exists {
		stats = &ComponentStats{}
		m.components[component] = stats
	}
	stats.TotalCalls++
	if ok {
		stats.Successes++
	} else {
		stats.Failures++
	}
	stats.SumDurationMS += duration.Milliseconds()
	stats.CountForAvg++
}

// Inc bumps a named counter.
func (m *Metrics) Inc(counter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counter]++
}

// Counter reads a named counter; missing counters read zero.
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Component returns a copy of one component's stats.
func (m *Metrics) Component(name string) (ComponentStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.components[name]
	if !ok {
		return ComponentStats{}, false
	}
	return *stats, true
}

// Components returns a copy of all component stats.
func (m *Metrics) Components() map[string]ComponentStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ComponentStats, len(m.components))
	for name, stats := range m.components {
		out[name] = *stats
	}
	return out
}

// Counters returns a copy of all named counters.
func (m *Metrics) Counters() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]uint64, len(m.counters))
	for name, v := range m.counters {
		out[name] = v
	}
	return out
}
