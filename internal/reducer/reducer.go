// Package reducer folds generation stream events into the book model. It is
// the single state-transition path for the whole client: live stream events
// and heartbeat-replayed missed events both go through Reduce, so ordering
// and upsert invariants hold no matter where an event came from.
package reducer

import (
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/sse"
)

// State is everything the reducer owns: the session aggregate plus the book
// being assembled. Values are copied on transition; callers can hold a State
// without racing the next event.
type State struct {
	Session domain.GenerationSession `json:"session"`
	Book    domain.Book              `json:"book"`
}

// NewState returns the idle starting state.
func NewState() State {
	return State{
		Session: domain.GenerationSession{
			Status:        domain.StatusIdle,
			DisplayStatus: domain.DisplayActive,
		},
	}
}

// Effects describes the side effects a transition asks its owner to perform.
// The reducer never performs them itself: persistence, callbacks, and UI
// reactions stay out of the transition function so it can be tested alone.
type Effects struct {
	// Persist asks the owner to snapshot the new state.
	Persist bool
	// Completed fires the generation-complete path: clear the snapshot,
	// invoke the completion callback with UsageID, archive the book.
	Completed bool
	// UsageID accompanies Completed.
	UsageID string
	// Failed marks the generic error terminal path.
	Failed bool
	// CreditShortage marks the insufficient-credits terminal path. It is
	// deliberately separate from Failed: the caller offers a recharge, not a
	// retry.
	CreditShortage *domain.CreditShortage
	// ImageAttached names the chapter that just received an image, so the
	// owner can schedule placeholder computation. Zero means none.
	ImageAttached int
}

// Reduce applies one decoded event to the state and returns the new state
// plus the effects the transition requests. Unknown and raw events are
// recorded (last event ID bookkeeping) but change nothing else.
func Reduce(s State, ev sse.Event) (State, Effects) {
	next := State{
		Session: s.Session,
		Book:    s.Book.Clone(),
	}
	var fx Effects

	if ev.ID != "" {
		next.Session.LastEventID = ev.ID
		fx.Persist = true
	}

	switch ev.Type {
	case sse.EventStart:
		var data sse.StartData
		_ = ev.Decode(&data)
		next.Session.Status = domain.StatusGenerating
		next.Session.Progress = 0
		if next.Session.StartedAt.IsZero() {
			next.Session.StartedAt = time.Now()
		}
		if data.Message != "" {
			next.Session.Message = data.Message
		}
		fx.Persist = true

	case sse.EventCreditsDeducted:
		var data sse.CreditsDeductedData
		_ = ev.Decode(&data)
		if data.UsageID != "" {
			next.Session.SessionID = data.UsageID
		}
		next.Session.ApplyProgress(5)
		if data.Message != "" {
			next.Session.Message = data.Message
		}
		fx.Persist = true

	case sse.EventProgress:
		var data sse.ProgressData
		_ = ev.Decode(&data)
		if data.Progress != nil {
			next.Session.ApplyProgress(*data.Progress)
		}
		if data.Message != "" {
			next.Session.Message = data.Message
		}
		fx.Persist = true

	case sse.EventStructure:
		var data sse.StructureData
		if err := ev.Decode(&data); err == nil {
			if data.Data.TableOfContents != nil {
				next.Book.TableOfContents = data.Data.TableOfContents
			}
			next.Book.Metadata.Merge(domain.BookMetadata{
				Title:         data.Data.Title,
				Author:        data.Data.Author,
				TotalChapters: data.Data.TotalChapters,
			})
			if data.Message != "" {
				next.Session.Message = data.Message
			}
			fx.Persist = true
		}

	case sse.EventChapterComplete:
		var data sse.ChapterCompleteData
		if err := ev.Decode(&data); err == nil {
			next.Book.UpsertChapter(domain.Chapter{
				Number:    data.ChapterNumber,
				Title:     data.Title,
				Content:   data.Content,
				WordCount: data.WordCount,
				Sections:  data.Sections,
				Completed: true,
			})
			fx.Persist = true
		}

	case sse.EventImageAdded:
		var data sse.ImageAddedData
		if err := ev.Decode(&data); err == nil {
			attached := next.Book.AppendImage(data.ChapterNumber, domain.ImageAsset{
				Caption: data.Caption,
				Data:    data.Data,
				Source:  data.Source,
			})
			// An image for a chapter we have not seen is dropped silently:
			// tolerated, never fatal, never a phantom chapter.
			if attached {
				fx.ImageAttached = data.ChapterNumber
				fx.Persist = true
			}
		}

	case sse.EventComplete:
		var data sse.CompleteData
		_ = ev.Decode(&data)
		next.Session.Status = domain.StatusCompleted
		next.Session.ApplyProgress(100)
		if data.Message != "" {
			next.Session.Message = data.Message
		}
		if data.BookData != nil {
			next.Book.Metadata.Merge(domain.BookMetadata{
				Title:          data.BookData.Title,
				Author:         data.BookData.Author,
				TotalChapters:  data.BookData.TotalChapters,
				TotalWords:     data.BookData.TotalWords,
				TotalImages:    data.BookData.TotalImages,
				GenerationTime: data.BookData.GenerationTime,
			})
			if data.BookData.TableOfContents != nil {
				next.Book.TableOfContents = data.BookData.TableOfContents
			}
			if data.BookData.CompleteChapters != nil {
				next.Book.ReplaceChapters(data.BookData.CompleteChapters)
			}
		}
		fx.Persist = true

	case sse.EventStored:
		var data sse.StoredData
		_ = ev.Decode(&data)
		if data.UsageID != "" {
			next.Session.SessionID = data.UsageID
		}
		next.Session.Status = domain.StatusCompleted
		fx.Completed = true
		fx.UsageID = next.Session.SessionID
		fx.Persist = true

	case sse.EventError:
		var data sse.ErrorData
		_ = ev.Decode(&data)
		next.Session.Status = domain.StatusError
		if data.ErrorCode == sse.ErrorCodeInsufficientCredits {
			shortage := &domain.CreditShortage{
				Required:  data.CreditsRequired,
				Available: data.CreditsAvailable,
				Needed:    data.CreditsNeeded,
			}
			next.Session.CreditShortage = shortage
			fx.CreditShortage = shortage
		} else {
			next.Session.ErrorMessage = data.Message
			fx.Failed = true
		}
		if data.Message != "" {
			next.Session.Message = data.Message
		}
		fx.Persist = true
	}

	return next, fx
}
