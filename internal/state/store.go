// Package state holds the shared counter map that every connection reads
// and increments. It is the single source of truth for counter values.
package state

import (
	"math"
	"math/bits"
	"sync"
)

// Snapshot is an immutable copy of the store's contents at a point in time.
// It never aliases the live map, so it can be handed to any number of
// concurrent readers.
type Snapshot map[string]uint64

// Store maps a claimed name to its counter. A name that is absent counts as
// zero. The zero value is not usable; call New.
type Store struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{counts: make(map[string]uint64)}
}

// Snapshot returns a copy of the current counters.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Add applies delta to the counter for name and returns the resulting full
// snapshot. The increment and the copy happen under the same lock, so the
// returned snapshot is exactly the state produced by this mutation.
// Counters saturate at math.MaxUint64.
func (s *Store) Add(name string, delta uint64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, carry := bits.Add64(s.counts[name], delta, 0)
	if carry != 0 {
		sum = math.MaxUint64
	}
	s.counts[name] = sum
	return s.copyLocked()
}

// Get returns the counter for name, or zero if it was never incremented.
func (s *Store) Get(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *Store) copyLocked() Snapshot {
	out := make(Snapshot, len(s.counts))
	for name, count := range s.counts {
		out[name] = count
	}
	return out
}
