// Package store persists the generation session snapshot that lets a job
// survive a client restart. Storage is a single global slot: one snapshot per
// client profile, concurrent sessions deliberately unsupported.
package store

import (
	"context"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/reducer"
)

// SchemaVersion is bumped whenever the snapshot layout changes. A snapshot
// written by a different schema loads as absent rather than half-decoding.
const SchemaVersion = 1

// DefaultTTL is how long an interrupted-session snapshot stays loadable.
const DefaultTTL = 24 * time.Hour

// Snapshot is a timestamped copy of the full reducer state.
type Snapshot struct {
	SchemaVersion int           `json:"schema_version"`
	SavedAt       time.Time     `json:"saved_at"`
	State         reducer.State `json:"state"`
}

// NewSnapshot wraps state with the current schema version and timestamp.
func NewSnapshot(state reducer.State) *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now(),
		State:         state,
	}
}

// Expired reports whether the snapshot is older than ttl as of now.
func (s *Snapshot) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.SavedAt) > ttl
}

// SnapshotStore is the durable single-slot snapshot storage. It is injected
// into the session manager, never a package global, so tests run against the
// in-memory implementation.
//
// Durability is an optimization, not a correctness requirement: callers are
// expected to log-and-continue on Save failures, never to abort generation.
type SnapshotStore interface {
	// Save writes the snapshot, replacing any previous one.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the stored snapshot, or nil when none exists, the stored
	// one has expired, or it was written by a different schema version.
	Load(ctx context.Context) (*Snapshot, error)
	// Clear removes the snapshot. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
