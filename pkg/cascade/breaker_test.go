package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

func testBreaker(failures, successes, openMS int) *Breaker {
	return NewBreaker("p1", config.BreakerConfig{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		OpenTimeoutMS:    openMS,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := testBreaker(3, 1, 30000)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := testBreaker(3, 1, 30000)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b := testBreaker(1, 1, 30000)

	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.Allow())

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	b := testBreaker(1, 2, 30000)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(time.Minute)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := testBreaker(1, 1, 30000)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(time.Minute)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerTransitionHook(t *testing.T) {
	b := testBreaker(1, 1, 30000)
	now := time.Now()
	b.now = func() time.Time { return now }

	type hop struct{ from, to BreakerState }
	var hops []hop
	b.OnTransition(func(from, to BreakerState) {
		hops = append(hops, hop{from, to})
	})

	b.RecordFailure()
	now = now.Add(time.Minute)
	b.Allow()
	b.RecordSuccess()

	require.Len(t, hops, 3)
	assert.Equal(t, hop{StateClosed, StateOpen}, hops[0])
	assert.Equal(t, hop{StateOpen, StateHalfOpen}, hops[1])
	assert.Equal(t, hop{StateHalfOpen, StateClosed}, hops[2])
}

func TestBreakerSnapshot(t *testing.T) {
	b := testBreaker(2, 1, 30000)

	snap := b.Snapshot()
	assert.Equal(t, "p1", snap.Provider)
	assert.Equal(t, StateClosed, snap.State)
	assert.Nil(t, snap.OpenedAt)

	b.RecordFailure()
	b.RecordFailure()
	snap = b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	require.NotNil(t, snap.OpenedAt)
}

func TestBreakerDefaultsApplied(t *testing.T) {
	b := NewBreaker("p1", config.BreakerConfig{})

	// Defaults: threshold 3, open timeout 30s.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}
