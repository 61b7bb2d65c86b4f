package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/reducer"
	"github.com/bookforgeapp/bookforge-client/internal/store"
)

func sampleState() reducer.State {
	s := reducer.NewState()
	s.Session.SessionID = "usage-42"
	s.Session.Status = domain.StatusGenerating
	s.Session.Progress = 55
	s.Session.LastEventID = "evt-9"
	s.Book.UpsertChapter(domain.Chapter{Number: 1, Title: "One", Content: "aaa", WordCount: 400, Completed: true})
	return s
}

// stores under test: both implementations must behave identically.
func openStores(t *testing.T, ttl time.Duration) map[string]store.SnapshotStore {
	t.Helper()

	bs, err := store.OpenBadger(t.TempDir(), ttl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]store.SnapshotStore{
		"badger": bs,
		"memory": store.NewMemoryStore(ttl),
	}
}

func TestSnapshotStore_SaveLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, store.NewSnapshot(sampleState())))

			snap, err := s.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, store.SchemaVersion, snap.SchemaVersion)
			assert.Equal(t, "usage-42", snap.State.Session.SessionID)
			assert.Equal(t, 55, snap.State.Session.Progress)
			require.Len(t, snap.State.Book.Chapters, 1)
			assert.Equal(t, "One", snap.State.Book.Chapters[0].Title)
		})
	}
}

func TestSnapshotStore_LoadEmpty(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			snap, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestSnapshotStore_SaveReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			first := store.NewSnapshot(sampleState())
			require.NoError(t, s.Save(ctx, first))

			st := sampleState()
			st.Session.Progress = 90
			require.NoError(t, s.Save(ctx, store.NewSnapshot(st)))

			snap, err := s.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, 90, snap.State.Session.Progress, "single slot: last save wins")
		})
	}
}

func TestSnapshotStore_ExpiredLoadsAsNil(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			snap := store.NewSnapshot(sampleState())
			snap.SavedAt = time.Now().Add(-2 * time.Hour)
			require.NoError(t, s.Save(ctx, snap))

			loaded, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, loaded, "expired snapshot is treated as absent")
		})
	}
}

func TestSnapshotStore_SchemaMismatchLoadsAsNil(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			snap := store.NewSnapshot(sampleState())
			snap.SchemaVersion = store.SchemaVersion + 1
			require.NoError(t, s.Save(ctx, snap))

			loaded, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, loaded, "unknown schema version is never surfaced")
		})
	}
}

func TestSnapshotStore_Clear(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Clear(ctx), "clearing an empty store is not an error")

			require.NoError(t, s.Save(ctx, store.NewSnapshot(sampleState())))
			require.NoError(t, s.Clear(ctx))

			snap, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestSnapshot_Expired(t *testing.T) {
	now := time.Now()
	snap := store.NewSnapshot(reducer.NewState())

	snap.SavedAt = now.Add(-23 * time.Hour)
	assert.False(t, snap.Expired(now, 24*time.Hour))

	snap.SavedAt = now.Add(-25 * time.Hour)
	assert.True(t, snap.Expired(now, 24*time.Hour))
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	bs, err := store.OpenBadger(dir, time.Hour, nil)
	require.NoError(t, err)
	require.NoError(t, bs.Save(ctx, store.NewSnapshot(sampleState())))
	require.NoError(t, bs.Close())

	bs, err = store.OpenBadger(dir, time.Hour, nil)
	require.NoError(t, err)
	defer bs.Close()

	snap, err := bs.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "usage-42", snap.State.Session.SessionID)
}
