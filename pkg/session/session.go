// Package session keeps per-session conversation history in memory and
// serializes the requests that mutate it. History is bounded to the most
// recent max_turns and is never persisted; a process restart starts every
// conversation fresh. Requests for one session run one at a time: later
// arrivals wait their turn under the queue policy or fail fast under
// reject.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stentorlabs/stentor/pkg/config"
)

const (
	PolicyQueue  = "queue"
	PolicyReject = "reject"
)

// ErrBusy reports a request turned away because its session is occupied:
// either a request is already in flight under the reject policy, or the
// wait queue is full under the queue policy.
var ErrBusy = errors.New("session busy")

// Turn is one utterance in a conversation. Intent and Provider record how
// the assistant produced its reply and stay empty on user turns.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    string    `json:"intent,omitempty"`
	Provider  string    `json:"provider,omitempty"`
}

// state is one session's history plus its serialization gate. While busy
// one request is the session's only writer; waiters holds the parked
// requests oldest first, and release hands the slot to the head of the
// line.
type state struct {
	qmu     sync.Mutex
	busy    bool
	waiters []chan struct{}
	turns   []Turn
}

// acquire claims the slot immediately or parks the caller at the back of
// the line. The returned channel is closed when the slot is handed over;
// a nil channel with ok means the slot was claimed outright.
func (st *state) acquire(maxQueue int) (ch chan struct{}, ok bool) {
	st.qmu.Lock()
	defer st.qmu.Unlock()

	if !st.busy {
		st.busy = true
		return nil, true
	}
	if len(st.waiters) >= maxQueue {
		return nil, false
	}
	ch = make(chan struct{})
	st.waiters = append(st.waiters, ch)
	return ch, true
}

// release hands the slot to the oldest waiter, or frees it when the line
// is empty.
func (st *state) release() {
	st.qmu.Lock()
	if len(st.waiters) > 0 {
		next := st.waiters[0]
		st.waiters = st.waiters[1:]
		st.qmu.Unlock()
		close(next)
		return
	}
	st.busy = false
	st.qmu.Unlock()
}

// abandon removes a cancelled waiter from the line. When the waiter is
// gone the slot was already handed to it, so the handoff is passed on.
func (st *state) abandon(ch chan struct{}) {
	st.qmu.Lock()
	for i, w := range st.waiters {
		if w == ch {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			st.qmu.Unlock()
			return
		}
	}
	st.qmu.Unlock()
	st.release()
}

// Service stores sessions keyed by id. The zero value is not usable;
// construct with NewService.
type Service struct {
	cfg config.HistoryConfig

	mu       sync.RWMutex
	sessions map[string]*state

	now func() time.Time
}

func NewService(cfg config.HistoryConfig) *Service {
	cfg.SetDefaults()
	return &Service{
		cfg:      cfg,
		sessions: make(map[string]*state),
		now:      time.Now,
	}
}

// EnsureID returns id unchanged, or a fresh uuid when id is empty.
func (s *Service) EnsureID(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.New().String()
	}
	return id
}

// Acquire claims the session's writer slot. Under the queue policy the
// caller waits in arrival order behind at most max_queue others; under
// reject an occupied session fails immediately. Errors are ErrBusy or the
// context's error. The returned release is safe to call more than once.
func (s *Service) Acquire(ctx context.Context, id string) (func(), error) {
	st := s.session(id)

	if s.cfg.SessionPolicy == PolicyReject {
		if _, ok := st.acquire(0); !ok {
			return nil, fmt.Errorf("session %s: %w: request already in flight", id, ErrBusy)
		}
		return releaser(st), nil
	}

	ch, ok := st.acquire(s.cfg.MaxQueue)
	if !ok {
		return nil, fmt.Errorf("session %s: %w: wait queue full", id, ErrBusy)
	}
	if ch == nil {
		return releaser(st), nil
	}

	select {
	case <-ch:
		return releaser(st), nil
	case <-ctx.Done():
		st.abandon(ch)
		return nil, ctx.Err()
	}
}

func releaser(st *state) func() {
	var once sync.Once
	return func() {
		once.Do(st.release)
	}
}

// History returns a copy of the session's turns, oldest first. Unknown
// sessions return nil.
func (s *Service) History(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[id]
	if !ok || len(st.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(st.turns))
	copy(out, st.turns)
	return out
}

// Append records turns at the end of the session's history, stamping any
// zero timestamps, then evicts the oldest turns beyond max_turns.
func (s *Service) Append(id string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	st := s.session(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range turns {
		if turns[i].Timestamp.IsZero() {
			turns[i].Timestamp = s.now()
		}
	}
	st.turns = append(st.turns, turns...)
	if max := s.cfg.MaxTurns; len(st.turns) > max {
		trimmed := make([]Turn, max)
		copy(trimmed, st.turns[len(st.turns)-max:])
		st.turns = trimmed
	}
}

// Clear wipes a session's history and reports how many turns it held.
// The session itself survives, so queued requests keep their place.
func (s *Service) Clear(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return 0
	}
	n := len(st.turns)
	st.turns = nil
	return n
}

// Count returns the number of sessions the service has seen.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// TurnCount returns the number of stored turns for a session.
func (s *Service) TurnCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.sessions[id]; ok {
		return len(st.turns)
	}
	return 0
}

// session returns the state for id, creating it on first sight.
func (s *Service) session(id string) *state {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[id]; ok {
		return st
	}
	st = &state{}
	s.sessions[id] = st
	return st
}
