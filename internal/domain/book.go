// Package domain contains the core types for a BookForge generation session:
// the in-progress book model and the session state that tracks one job.
package domain

import "sort"

// BookMetadata describes the book being generated. Fields start empty and are
// filled incrementally as structure and completion events arrive; a non-empty
// value is never clobbered by an empty one.
type BookMetadata struct {
	Title          string  `json:"title,omitempty"`
	Author         string  `json:"author,omitempty"`
	TotalChapters  int     `json:"total_chapters,omitempty"`
	TotalWords     int     `json:"total_words,omitempty"`
	TotalImages    int     `json:"total_images,omitempty"`
	GenerationTime float64 `json:"generation_time,omitempty"` // seconds
}

// Merge fills m from other: non-zero incoming values win, zero incoming
// values leave the existing ones alone.
func (m *BookMetadata) Merge(other BookMetadata) {
	if other.Title != "" {
		m.Title = other.Title
	}
	if other.Author != "" {
		m.Author = other.Author
	}
	if other.TotalChapters != 0 {
		m.TotalChapters = other.TotalChapters
	}
	if other.TotalWords != 0 {
		m.TotalWords = other.TotalWords
	}
	if other.TotalImages != 0 {
		m.TotalImages = other.TotalImages
	}
	if other.GenerationTime != 0 {
		m.GenerationTime = other.GenerationTime
	}
}

// TableOfContentsEntry is one row of the book's table of contents.
// The list is always replaced wholesale when the backend supplies a fresh one.
type TableOfContentsEntry struct {
	Title         string `json:"title"`
	Page          int    `json:"page"`
	ChapterNumber int    `json:"chapter_number"`
}

// ImageAsset is an illustration attached to a chapter. It has no identity
// beyond its position in the chapter's image list.
type ImageAsset struct {
	Caption string `json:"caption,omitempty"`
	// Data is the image payload, base64-encoded or a data URI.
	Data   string `json:"data"`
	Source string `json:"source,omitempty"`

	// Display placeholder fields, computed client-side when the image data
	// decodes. Absent when decoding fails; never required for correctness.
	Blurhash string `json:"blurhash,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Chapter is one generated chapter, keyed by its number (unique per session).
type Chapter struct {
	Number    int          `json:"chapter_number"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	WordCount int          `json:"word_count"`
	Images    []ImageAsset `json:"images,omitempty"`
	Sections  []string     `json:"sections,omitempty"`
	Completed bool         `json:"completed"`
}

// Book is the in-memory model the reducer builds from the event stream.
type Book struct {
	Metadata        BookMetadata           `json:"metadata"`
	TableOfContents []TableOfContentsEntry `json:"table_of_contents,omitempty"`
	Chapters        []Chapter              `json:"chapters,omitempty"`
}

// ChapterIndex returns the index of the chapter with the given number,
// or -1 if absent.
func (b *Book) ChapterIndex(number int) int {
	for i := range b.Chapters {
		if b.Chapters[i].Number == number {
			return i
		}
	}
	return -1
}

// UpsertChapter inserts ch or replaces the existing chapter with the same
// number, then restores ascending chapter-number order. A chapter arriving
// twice never duplicates; arrival order never decides display order.
func (b *Book) UpsertChapter(ch Chapter) {
	if i := b.ChapterIndex(ch.Number); i >= 0 {
		b.Chapters[i] = ch
	} else {
		b.Chapters = append(b.Chapters, ch)
	}
	b.sortChapters()
}

// AppendImage adds img to the chapter with the given number. Returns false
// when no such chapter exists yet; the image is dropped, never a phantom
// chapter created.
func (b *Book) AppendImage(chapterNumber int, img ImageAsset) bool {
	i := b.ChapterIndex(chapterNumber)
	if i < 0 {
		return false
	}
	b.Chapters[i].Images = append(b.Chapters[i].Images, img)
	return true
}

// ReplaceChapters swaps in a complete new chapter list (full overwrite, not a
// merge) and sorts it. Used when a completion event carries the final book.
func (b *Book) ReplaceChapters(chapters []Chapter) {
	b.Chapters = chapters
	b.sortChapters()
}

// WordCount sums the word counts of all chapters.
func (b *Book) WordCount() int {
	total := 0
	for i := range b.Chapters {
		total += b.Chapters[i].WordCount
	}
	return total
}

// ImageCount sums the images across all chapters.
func (b *Book) ImageCount() int {
	total := 0
	for i := range b.Chapters {
		total += len(b.Chapters[i].Images)
	}
	return total
}

// Clone returns a deep-enough copy: chapter and TOC slices are copied so the
// reducer can hand out states without sharing mutable backing arrays. Image
// slices are copied per chapter for the same reason.
func (b *Book) Clone() Book {
	out := Book{Metadata: b.Metadata}
	if b.TableOfContents != nil {
		out.TableOfContents = make([]TableOfContentsEntry, len(b.TableOfContents))
		copy(out.TableOfContents, b.TableOfContents)
	}
	if b.Chapters != nil {
		out.Chapters = make([]Chapter, len(b.Chapters))
		copy(out.Chapters, b.Chapters)
		for i := range out.Chapters {
			if b.Chapters[i].Images != nil {
				out.Chapters[i].Images = make([]ImageAsset, len(b.Chapters[i].Images))
				copy(out.Chapters[i].Images, b.Chapters[i].Images)
			}
			if b.Chapters[i].Sections != nil {
				out.Chapters[i].Sections = make([]string, len(b.Chapters[i].Sections))
				copy(out.Chapters[i].Sections, b.Chapters[i].Sections)
			}
		}
	}
	return out
}

func (b *Book) sortChapters() {
	sort.SliceStable(b.Chapters, func(i, j int) bool {
		return b.Chapters[i].Number < b.Chapters[j].Number
	})
}
