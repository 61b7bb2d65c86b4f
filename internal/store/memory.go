package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory SnapshotStore for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
	ttl  time.Duration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl}
}

// Save implements SnapshotStore.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snap = &cp
	return nil
}

// Load implements SnapshotStore.
func (s *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	if s.snap.SchemaVersion != SchemaVersion || s.snap.Expired(time.Now(), s.ttl) {
		s.snap = nil
		return nil, nil
	}
	cp := *s.snap
	return &cp, nil
}

// Clear implements SnapshotStore.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}
