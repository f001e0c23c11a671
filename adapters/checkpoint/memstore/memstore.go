// Package memstore implements checkpoint.Store in memory. It is intended
// for tests and local development, not production use — a process restart
// loses every snapshot.
package memstore

import (
	"context"
	"sync"

	"github.com/coriolis-labs/conductor/checkpoint"
)

// Store implements checkpoint.Store over a plain map guarded by a mutex,
// grounded on the teacher's runlog/inmem.Store (per-key mutex-guarded map,
// last-write wins per key).
type Store struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

var _ checkpoint.Store = (*Store)(nil)

// New returns an empty in-memory checkpoint store.
func New() *Store {
	return &Store{snapshots: make(map[string][]byte)}
}

// Get implements checkpoint.Store.
func (s *Store) Get(_ context.Context, threadID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.snapshots[threadID]
	if !ok {
		return nil, false, nil
	}
	// Return a copy so callers cannot mutate the stored snapshot.
	out := make([]byte, len(b))
	copy(out, b)
	return out, true, nil
}

// Put implements checkpoint.Store. Writes are atomic per thread_id: the
// whole snapshot is replaced under the single mutex.
func (s *Store) Put(_ context.Context, threadID string, snapshot []byte) error {
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[threadID] = cp
	return nil
}
