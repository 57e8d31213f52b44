package syncer

import (
	"sync"
	"time"

	"cngnlend/risk"
)

// Snapshot is the shared read state every component consumes: the protocol
// parameter set, the tracked account's derived position, and its wallet
// balances. Snapshots are immutable once published.
type Snapshot struct {
	Params   risk.Params
	Position risk.Position
	Balances risk.Balances
	// HasUser reports whether the user-scoped fields have been populated;
	// protocol parameters can be current while no account is tracked.
	HasUser bool
	// Version increments on every replacement so readers can detect that
	// their view is stale.
	Version   uint64
	UpdatedAt time.Time
}

// Store holds the current snapshot. Many readers, one writer: only the
// Synchronizer replaces the snapshot, and replacement is a whole-object
// swap under the lock so no reader ever observes a torn mix of old and new
// fields.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	subs []chan struct{}
}

// NewStore returns an empty store at version zero.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a channel that receives a notification after every
// swap. Notifications are best-effort: a slow consumer coalesces rather
// than blocking the writer.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) swap(mutate func(*Snapshot)) Snapshot {
	s.mu.Lock()
	next := s.snap
	mutate(&next)
	next.Version = s.snap.Version + 1
	next.UpdatedAt = time.Now()
	s.snap = next
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return next
}
