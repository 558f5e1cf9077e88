package cascade

import (
	"sync"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
)

// BreakerState is the circuit state for one provider.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// Breaker isolates a misbehaving provider. Closed passes calls through
// and counts consecutive failures; open rejects until the open timeout
// elapses; half-open admits trial calls and closes again after enough
// successes. A half-open failure re-opens immediately.
type Breaker struct {
	mu        sync.Mutex
	provider  string
	cfg       config.BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	now          func() time.Time
	onTransition func(from, to BreakerState)
}

// BreakerSnapshot is a point-in-time view for health reporting.
type BreakerSnapshot struct {
	Provider            string       `json:"provider"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
}

func NewBreaker(provider string, cfg config.BreakerConfig) *Breaker {
	cfg.SetDefaults()
	return &Breaker{
		provider: provider,
		cfg:      cfg,
		state:    StateClosed,
		now:      time.Now,
	}
}

// OnTransition installs a hook invoked (outside the lock) on every
// state change.
func (b *Breaker) OnTransition(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed. An expired open breaker
// flips to half-open and admits the call as a trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < time.Duration(b.cfg.OpenTimeoutMS)*time.Millisecond {
			b.mu.Unlock()
			return false
		}
		hook := b.transition(StateHalfOpen)
		b.successes = 0
		b.mu.Unlock()
		if hook != nil {
			hook()
		}
		return true
	default:
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	var hook func()
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			hook = b.transition(StateClosed)
			b.failures = 0
		}
	case StateClosed:
		b.failures = 0
	}

	b.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// RecordFailure notes a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	var hook func()
	switch b.state {
	case StateHalfOpen:
		hook = b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			hook = b.open()
		}
	}

	b.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// State returns the current state without side effects; an expired
// open breaker still reads as open until the next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's current view for health reporting.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{
		Provider:            b.provider,
		State:               b.state,
		ConsecutiveFailures: b.failures,
	}
	if b.state != StateClosed && !b.openedAt.IsZero() {
		at := b.openedAt
		snap.OpenedAt = &at
	}
	return snap
}

// open flips to the open state, keeping the failure count that tripped
// it visible in snapshots. Caller holds the lock.
func (b *Breaker) open() func() {
	hook := b.transition(StateOpen)
	b.openedAt = b.now()
	return hook
}

// transition changes state and returns the hook to run after the lock
// is released. Caller holds the lock.
func (b *Breaker) transition(to BreakerState) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to

	fn := b.onTransition
	if fn == nil {
		return nil
	}
	return func() { fn(from, to) }
}
