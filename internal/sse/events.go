// Package sse implements the client side of the BookForge generation stream:
// a Server-Sent-Event-like protocol of `event:`/`data:` frames carrying JSON
// payloads, parsed incrementally from arbitrary network chunk boundaries.
package sse

import (
	"encoding/json/jsontext"
	"encoding/json/v2"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
)

// EventType represents the type of a generation stream event.
type EventType string

const (
	// EventStart signals the backend has accepted the job.
	EventStart EventType = "start"
	// EventCreditsDeducted assigns the session's usage ID and confirms billing.
	EventCreditsDeducted EventType = "credits_deducted"
	// EventProgress carries a percentage and status message update.
	EventProgress EventType = "progress"
	// EventStructure delivers the planned table of contents and title.
	EventStructure EventType = "structure"
	// EventChapterComplete delivers one finished chapter.
	EventChapterComplete EventType = "chapter_complete"
	// EventImageAdded attaches an illustration to an existing chapter.
	EventImageAdded EventType = "image_added"
	// EventComplete signals generation finished; may carry the final book.
	EventComplete EventType = "complete"
	// EventStored confirms the finished book is persisted server-side.
	EventStored EventType = "stored"
	// EventError reports a terminal generation failure.
	EventError EventType = "error"

	// EventMessage is the default tag for frames with no event: line and no
	// recognizable type field, including raw/undecodable frames.
	EventMessage EventType = "message"
)

// ErrorCodeInsufficientCredits is the error_code value that selects the
// structured credit-shortage failure path instead of the generic one.
const ErrorCodeInsufficientCredits = "INSUFFICIENT_CREDITS"

// Event is one decoded frame from the stream.
type Event struct {
	// Type is the effective event type: the frame's event: tag when present,
	// otherwise the payload's "type" field, otherwise "message".
	Type EventType

	// Seq is the 1-based position of this event in its stream. Parser-assigned.
	Seq int

	// ID is the backend-assigned event identifier when the payload carries
	// one; reported back on heartbeats for missed-event replay.
	ID string

	// Data is the raw JSON payload of the data: line. Nil for raw events.
	Data jsontext.Value

	// Raw marks a frame whose payload failed to parse as JSON. The original
	// text is preserved; raw frames never terminate the stream.
	Raw     bool
	RawText string
}

// Decode unmarshals the event payload into dst.
func (e *Event) Decode(dst any) error {
	return json.Unmarshal(e.Data, dst)
}

// Payload shapes for each event type. Wire field names follow the backend
// contract; book-shaped fields reuse the domain types, whose JSON tags match.

// StartData is the payload of a start event.
type StartData struct {
	Message string `json:"message,omitempty"`
}

// CreditsDeductedData is the payload of a credits_deducted event.
type CreditsDeductedData struct {
	UsageID string `json:"usage_id"`
	Message string `json:"message,omitempty"`
}

// ProgressData is the payload of a progress event. Progress is a pointer so
// "no progress field" is distinguishable from an explicit zero.
type ProgressData struct {
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StructurePayload is the inner data object of a structure event.
type StructurePayload struct {
	Title           string                        `json:"title,omitempty"`
	Author          string                        `json:"author,omitempty"`
	TotalChapters   int                           `json:"total_chapters,omitempty"`
	TableOfContents []domain.TableOfContentsEntry `json:"table_of_contents,omitempty"`
}

// StructureData is the payload of a structure event.
type StructureData struct {
	Data    StructurePayload `json:"data"`
	Message string           `json:"message,omitempty"`
}

// ChapterCompleteData is the payload of a chapter_complete event.
type ChapterCompleteData struct {
	ChapterNumber int      `json:"chapter_number"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	WordCount     int      `json:"word_count"`
	Sections      []string `json:"sections,omitempty"`
}

// ImageAddedData is the payload of an image_added event.
type ImageAddedData struct {
	ChapterNumber int    `json:"chapter_number"`
	Caption       string `json:"caption,omitempty"`
	Data          string `json:"data"`
	Source        string `json:"source,omitempty"`
}

// BookData is the full book a complete event may carry. When
// CompleteChapters is present the client replaces its entire chapter list.
type BookData struct {
	Title            string                        `json:"title,omitempty"`
	Author           string                        `json:"author,omitempty"`
	TotalChapters    int                           `json:"total_chapters,omitempty"`
	TotalWords       int                           `json:"total_words,omitempty"`
	TotalImages      int                           `json:"total_images,omitempty"`
	GenerationTime   float64                       `json:"generation_time,omitempty"`
	TableOfContents  []domain.TableOfContentsEntry `json:"table_of_contents,omitempty"`
	CompleteChapters []domain.Chapter              `json:"complete_chapters,omitempty"`
}

// CompleteData is the payload of a complete event.
type CompleteData struct {
	Progress *int      `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	BookData *BookData `json:"book_data,omitempty"`
}

// StoredData is the payload of a stored event.
type StoredData struct {
	UsageID string `json:"usage_id"`
	Message string `json:"message,omitempty"`
}

// ErrorData is the payload of an error event. The credit fields are only
// meaningful when ErrorCode is ErrorCodeInsufficientCredits.
type ErrorData struct {
	Message          string `json:"message,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	CreditsRequired  int    `json:"credits_required,omitempty"`
	CreditsAvailable int    `json:"credits_available,omitempty"`
	CreditsNeeded    int    `json:"credits_needed,omitempty"`
}
