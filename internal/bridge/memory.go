package bridge

import (
	"context"
	"sync"
)

// MemoryStore is the in-process implementation of Store.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns a MemoryStore initialized to the empty default.
func NewMemory() *MemoryStore {
	return &MemoryStore{snap: Empty()}
}

func (s *MemoryStore) Write(_ context.Context, snap Snapshot) error {
	if snap.Results == nil {
		snap.Results = Empty().Results
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Read(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.snap = Empty()
	s.mu.Unlock()
	return nil
}
