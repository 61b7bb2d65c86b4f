// Package library archives completed books in a local SQLite database so the
// user keeps a browsable history after the generation session is gone.
package library

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json/v2"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/id"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one archived book, without the full content.
type Entry struct {
	ID        string    `json:"id"`
	UsageID   string    `json:"usage_id,omitempty"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Chapters  int       `json:"chapters"`
	Words     int       `json:"words"`
	Images    int       `json:"images"`
	CreatedAt time.Time `json:"created_at"`
}

// Library is a SQLite-backed archive of completed books.
type Library struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a library at the given path, configuring WAL mode and running
// the schema migration.
func Open(path string, logger *slog.Logger) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "open library database")
	}

	// SQLite allows a single writer; keep the pool small.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, errors.CodeInternal, "exec pragma %q", pragma)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeInternal, "migrate library schema")
	}

	return &Library{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (l *Library) Close() error {
	return l.db.Close()
}

// Archive stores a completed book and returns its library ID.
func (l *Library) Archive(ctx context.Context, book *domain.Book, usageID string) (string, error) {
	data, err := json.Marshal(book)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "encode book")
	}

	bookID, err := id.Generate("book")
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "generate book id")
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO books (id, usage_id, title, author, chapters, words, images, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bookID,
		usageID,
		book.Metadata.Title,
		book.Metadata.Author,
		len(book.Chapters),
		book.WordCount(),
		book.ImageCount(),
		time.Now().UTC().Format(time.RFC3339),
		data,
	)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "insert book")
	}

	l.logger.Info("book archived", "book_id", bookID, "title", book.Metadata.Title)
	return bookID, nil
}

// List returns archive entries, newest first.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, usage_id, title, author, chapters, words, images, created_at
		 FROM books ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "query books")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UsageID, &e.Title, &e.Author, &e.Chapters, &e.Words, &e.Images, &createdAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "scan book row")
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "iterate book rows")
	}
	return entries, nil
}

// Get loads the full book for a library ID.
func (l *Library) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	var data []byte
	err := l.db.QueryRowContext(ctx, `SELECT data FROM books WHERE id = ?`, bookID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.SessionNotFoundf("book %s not found in library", bookID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "query book")
	}

	var book domain.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "decode book")
	}
	return &book, nil
}

// Delete removes a book from the archive.
func (l *Library) Delete(ctx context.Context, bookID string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, bookID)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "delete book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.SessionNotFoundf("book %s not found in library", bookID)
	}
	return nil
}
