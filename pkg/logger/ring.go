package logger

import "sync"

// DefaultRingSize bounds the event log when no size is configured.
const DefaultRingSize = 10000

// Ring is a bounded, append-only buffer of log entries. Writers overwrite
// the oldest entry once the ring is full.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Len reports how many entries the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Cap reports the ring's fixed capacity.
func (r *Ring) Cap() int {
	return len(r.entries)
}

// Filter narrows a Snapshot. MinLevel keeps entries at or above the level,
// Category and TraceID match exactly, Limit keeps the most recent N matches.
// Zero values disable each criterion.
type Filter struct {
	MinLevel *Level
	Category Category
	TraceID  string
	Limit    int
}

func (f Filter) matches(e Entry) bool {
	if f.MinLevel != nil && e.Level < *f.MinLevel {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	return true
}

// Snapshot returns matching entries in chronological order.
func (r *Ring) Snapshot(f Filter) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	appendMatch := func(e Entry) {
		if f.matches(e) {
			out = append(out, e)
		}
	}

	if r.full {
		for i := r.next; i < len(r.entries); i++ {
			appendMatch(r.entries[i])
		}
	}
	for i := 0; i < r.next; i++ {
		appendMatch(r.entries[i])
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}
