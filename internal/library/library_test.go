package library_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/library"
)

func openLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Open(filepath.Join(t.TempDir(), "library.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func sampleBook(title string) *domain.Book {
	return &domain.Book{
		Metadata: domain.BookMetadata{Title: title, Author: "R. Moss", TotalChapters: 2},
		Chapters: []domain.Chapter{
			{Number: 1, Title: "One", Content: "aaa", WordCount: 400, Completed: true,
				Images: []domain.ImageAsset{{Caption: "cover", Data: "aGk="}}},
			{Number: 2, Title: "Two", Content: "bbb", WordCount: 600, Completed: true},
		},
	}
}

func TestLibrary_ArchiveAndGet(t *testing.T) {
	lib := openLibrary(t)
	ctx := context.Background()

	id, err := lib.Archive(ctx, sampleBook("Tides"), "usage-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "book-"))

	book, err := lib.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tides", book.Metadata.Title)
	require.Len(t, book.Chapters, 2)
	assert.Equal(t, "cover", book.Chapters[0].Images[0].Caption)
}

func TestLibrary_ListNewestFirst(t *testing.T) {
	lib := openLibrary(t)
	ctx := context.Background()

	_, err := lib.Archive(ctx, sampleBook("First"), "usage-1")
	require.NoError(t, err)
	_, err = lib.Archive(ctx, sampleBook("Second"), "usage-2")
	require.NoError(t, err)

	entries, err := lib.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	titles := []string{entries[0].Title, entries[1].Title}
	assert.ElementsMatch(t, []string{"First", "Second"}, titles)
	assert.Equal(t, 2, entries[0].Chapters)
	assert.Equal(t, 1000, entries[0].Words)
	assert.Equal(t, 1, entries[0].Images)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestLibrary_ListEmpty(t *testing.T) {
	lib := openLibrary(t)

	entries, err := lib.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLibrary_GetUnknownID(t *testing.T) {
	lib := openLibrary(t)

	_, err := lib.Get(context.Background(), "book-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
}

func TestLibrary_Delete(t *testing.T) {
	lib := openLibrary(t)
	ctx := context.Background()

	id, err := lib.Archive(ctx, sampleBook("Tides"), "usage-1")
	require.NoError(t, err)

	require.NoError(t, lib.Delete(ctx, id))

	_, err = lib.Get(ctx, id)
	require.Error(t, err)

	err = lib.Delete(ctx, id)
	require.Error(t, err, "deleting twice reports not found")
}

func TestLibrary_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.db")
	ctx := context.Background()

	lib, err := library.Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	id, err := lib.Archive(ctx, sampleBook("Tides"), "usage-1")
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	lib, err = library.Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer lib.Close()

	book, err := lib.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tides", book.Metadata.Title)
}
