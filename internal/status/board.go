package status

import (
	"sync"
	"time"

	"github.com/aquaice/livesync/internal/reconnect"
)

// Snapshot is the state of the board at one point in time.
type Snapshot struct {
	State       reconnect.State
	Attempt     int
	MaxAttempts int
	UserCount   int
	Modal       ModalView
	UpdatedAt   time.Time
}

// Board holds what the status UI renders. It is safe for concurrent use.
type Board struct {
	mu   sync.Mutex
	snap Snapshot
	subs map[uint64]func(Snapshot)
	next uint64
}

// NewBoard creates a disconnected board. max < 1 uses reconnect.DefaultMaxAttempts.
func NewBoard(max int) *Board {
	if max < 1 {
		max = reconnect.DefaultMaxAttempts
	}
	b := &Board{subs: make(map[uint64]func(Snapshot))}
	b.snap = Snapshot{
		State:       reconnect.Disconnected,
		MaxAttempts: max,
		Modal:       Modal(reconnect.Disconnected, 0, max),
		UpdatedAt:   time.Now(),
	}
	return b
}

// SetConnection records the connection state and attempt counter.
func (b *Board) SetConnection(state reconnect.State, attempt int) {
	b.update(func(s *Snapshot) bool {
		if s.State == state && s.Attempt == attempt {
			return false
		}
		s.State = state
		s.Attempt = attempt
		s.Modal = Modal(state, attempt, s.MaxAttempts)
		return true
	})
}

// SetUserCount records the number of connected users.
func (b *Board) SetUserCount(n int) {
	if n < 0 {
		return
	}
	b.update(func(s *Snapshot) bool {
		if s.UserCount == n {
			return false
		}
		s.UserCount = n
		return true
	})
}

// Snapshot returns the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Subscribe registers fn for every change and returns a function that removes it.
func (b *Board) Subscribe(fn func(Snapshot)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Board) update(fn func(*Snapshot) bool) {
	b.mu.Lock()
	if !fn(&b.snap) {
		b.mu.Unlock()
		return
	}
	b.snap.UpdatedAt = time.Now()
	snap := b.snap
	subs := make([]func(Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
