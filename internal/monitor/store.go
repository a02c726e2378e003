package monitor

import (
	"sync/atomic"

	"gpumon/internal/slurm"
)

// Store holds the most recently published snapshot. The scheduler is the
// only writer; the TUI, the status API, and the sinks read concurrently.
// Published snapshots are never mutated, so readers share them safely.
type Store struct {
	current atomic.Pointer[slurm.Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snapshot *slurm.Snapshot) {
	s.current.Store(snapshot)
}

// Current returns the latest published snapshot, or nil before the first
// successful collection.
func (s *Store) Current() *slurm.Snapshot {
	return s.current.Load()
}
