// Package export writes finished books to local files: a Markdown rendering
// of the full book, and the backend-produced PDF.
package export

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/util"
)

// htmlTagPattern matches common HTML tags to detect if a string contains HTML.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// Exporter writes books under a base directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

// New creates an Exporter rooted at dir. The directory is created on first
// use, not here.
func New(dir string, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// Markdown renders the book to a Markdown file and returns its path. Chapter
// content arriving as HTML is converted; plain text passes through unchanged.
func (e *Exporter) Markdown(book *domain.Book) (string, error) {
	if len(book.Chapters) == 0 {
		return "", errors.Validation("book has no chapters to export")
	}

	var sb strings.Builder
	title := book.Metadata.Title
	if title == "" {
		title = "Untitled"
	}
	sb.WriteString("# " + title + "\n\n")
	if book.Metadata.Author != "" {
		sb.WriteString("*by " + book.Metadata.Author + "*\n\n")
	}

	if len(book.TableOfContents) > 0 {
		sb.WriteString("## Contents\n\n")
		for _, entry := range book.TableOfContents {
			fmt.Fprintf(&sb, "%d. %s\n", entry.ChapterNumber, entry.Title)
		}
		sb.WriteString("\n")
	}

	for i := range book.Chapters {
		ch := &book.Chapters[i]
		fmt.Fprintf(&sb, "## Chapter %d: %s\n\n", ch.Number, ch.Title)
		sb.WriteString(toMarkdown(ch.Content))
		sb.WriteString("\n\n")
		for _, img := range ch.Images {
			if img.Caption != "" {
				sb.WriteString("> Illustration: " + img.Caption + "\n\n")
			}
		}
	}

	path := filepath.Join(e.dir, util.Slugify(title)+".md")
	if err := e.write(path, []byte(sb.String())); err != nil {
		return "", err
	}
	e.logger.Info("exported markdown", "path", path, "chapters", len(book.Chapters))
	return path, nil
}

// PDF decodes the backend's base64 PDF payload and writes it next to the
// Markdown exports. The backend's suggested filename is used when present.
func (e *Exporter) PDF(resp *api.PDFResponse, title string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(resp.PDFBase64)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "decode pdf payload")
	}

	name := resp.Filename
	if name == "" {
		if title == "" {
			title = "book"
		}
		name = util.Slugify(title) + ".pdf"
	}

	path := filepath.Join(e.dir, filepath.Base(name))
	if err := e.write(path, raw); err != nil {
		return "", err
	}
	e.logger.Info("saved pdf", "path", path, "bytes", len(raw))
	return path, nil
}

func (e *Exporter) write(path string, data []byte) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "create export directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "write export file")
	}
	return nil
}

// toMarkdown converts HTML content to Markdown. Input without HTML markup is
// returned unchanged, as is anything the converter rejects.
func toMarkdown(s string) string {
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}
	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}
