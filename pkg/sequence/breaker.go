package sequence

import (
	"sync"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
)

// runBreaker short-circuits a sequence whose runs keep failing. It
// counts failed runs in a sliding window rather than consecutively:
// reaching the failure threshold within the window opens the circuit,
// and once the open timeout elapses runs flow again with a fresh
// window. There is no half-open trial phase; a sequence run is too
// coarse a unit to probe with.
type runBreaker struct {
	mu       sync.Mutex
	sequence string
	cfg      config.SequenceBreakerConfig
	failures []time.Time
	openedAt time.Time
	opened   bool

	now func() time.Time
}

// BreakerSnapshot is a point-in-time view of one sequence breaker.
type BreakerSnapshot struct {
	Sequence       string     `json:"sequence"`
	Open           bool       `json:"open"`
	RecentFailures int        `json:"recent_failures"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
}

func newRunBreaker(sequence string, cfg config.SequenceBreakerConfig) *runBreaker {
	cfg.SetDefaults()
	return &runBreaker{
		sequence: sequence,
		cfg:      cfg,
		now:      time.Now,
	}
}

// allow reports whether a run may start. An expired open breaker
// closes and admits the run.
func (b *runBreaker) allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		if b.now().Sub(b.openedAt) < time.Duration(b.cfg.OpenTimeoutMS)*time.Millisecond {
			return false
		}
		b.opened = false
		b.failures = nil
	}
	return true
}

// record notes the outcome of one full run. Rejected runs are not
// recorded.
func (b *runBreaker) record(ok bool) {
	if !b.cfg.Enabled || ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-time.Duration(b.cfg.WindowMS) * time.Millisecond)
	kept := b.failures[:0]
	for _, at := range b.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.cfg.FailureThreshold {
		b.opened = true
		b.openedAt = now
		b.failures = nil
	}
}

func (b *runBreaker) snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{
		Sequence:       b.sequence,
		Open:           b.opened,
		RecentFailures: len(b.failures),
	}
	if b.opened {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}
