package logger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndWrap(t *testing.T) {
	ring := NewRing(3)

	for i := 0; i < 5; i++ {
		ring.Append(Entry{
			TimestampMS: int64(i),
			Level:       LevelInfo,
			Category:    CategorySystem,
			Message:     fmt.Sprintf("msg-%d", i),
		})
	}

	assert.Equal(t, 3, ring.Len())
	assert.Equal(t, 3, ring.Cap())

	entries := ring.Snapshot(Filter{})
	require.Len(t, entries, 3)

	// Oldest entries were overwritten; order stays chronological
	assert.Equal(t, "msg-2", entries[0].Message)
	assert.Equal(t, "msg-3", entries[1].Message)
	assert.Equal(t, "msg-4", entries[2].Message)
}

func TestRing_DefaultSize(t *testing.T) {
	ring := NewRing(0)
	assert.Equal(t, DefaultRingSize, ring.Cap())
}

func TestRing_SnapshotFilters(t *testing.T) {
	ring := NewRing(16)

	ring.Append(Entry{Level: LevelDebug, Category: CategoryCircuit, Message: "breaker open", TraceID: "t1"})
	ring.Append(Entry{Level: LevelInfo, Category: CategoryDecision, Message: "rule matched", TraceID: "t1"})
	ring.Append(Entry{Level: LevelError, Category: CategoryProvider, Message: "attempt failed", TraceID: "t2"})
	ring.Append(Entry{Level: LevelSuccess, Category: CategoryResponse, Message: "responded", TraceID: "t1"})

	t.Run("by trace id", func(t *testing.T) {
		entries := ring.Snapshot(Filter{TraceID: "t1"})
		require.Len(t, entries, 3)
		assert.Equal(t, "breaker open", entries[0].Message)
		assert.Equal(t, "responded", entries[2].Message)
	})

	t.Run("by category", func(t *testing.T) {
		entries := ring.Snapshot(Filter{Category: CategoryProvider})
		require.Len(t, entries, 1)
		assert.Equal(t, "attempt failed", entries[0].Message)
	})

	t.Run("by minimum level", func(t *testing.T) {
		min := LevelSuccess
		entries := ring.Snapshot(Filter{MinLevel: &min})
		require.Len(t, entries, 2)
		assert.Equal(t, LevelError, entries[0].Level)
		assert.Equal(t, LevelSuccess, entries[1].Level)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		entries := ring.Snapshot(Filter{TraceID: "t1", Limit: 2})
		require.Len(t, entries, 2)
		assert.Equal(t, "rule matched", entries[0].Message)
		assert.Equal(t, "responded", entries[1].Message)
	})
}
