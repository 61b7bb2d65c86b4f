package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// snapshotKey is the single global slot. One snapshot per client profile is a
// deliberate invariant, not a limitation to engineer around.
const snapshotKey = "session:snapshot"

// BadgerStore is the durable SnapshotStore backed by a local Badger database.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadger opens (or creates) the snapshot database at path.
func OpenBadger(path string, ttl time.Duration, logger *slog.Logger) (*BadgerStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // A snapshot that survives a crash is the whole point
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("snapshot store opened", "path", path, "ttl", ttl)
	}

	return &BadgerStore{db: db, ttl: ttl, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Save implements SnapshotStore.
func (s *BadgerStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore. Absent, expired, and schema-mismatched
// snapshots all load as nil; expired and mismatched ones are removed on the
// way out so the slot does not hold dead data.
func (s *BadgerStore) Load(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !found {
		return nil, nil
	}

	if snap.SchemaVersion != SchemaVersion {
		if s.logger != nil {
			s.logger.Warn("discarding snapshot with mismatched schema",
				"found", snap.SchemaVersion, "want", SchemaVersion)
		}
		_ = s.Clear(ctx)
		return nil, nil
	}

	if snap.Expired(time.Now(), s.ttl) {
		if s.logger != nil {
			s.logger.Info("discarding expired snapshot", "saved_at", snap.SavedAt)
		}
		_ = s.Clear(ctx)
		return nil, nil
	}

	return &snap, nil
}

// Clear implements SnapshotStore.
func (s *BadgerStore) Clear(_ context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotKey))
	})
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
