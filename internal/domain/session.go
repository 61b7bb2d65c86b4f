package domain

import "time"

// Status is the authoritative state of a generation session, driven by the
// backend event stream.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further events are expected for this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// DisplayStatus is the client-local presentation state. It diverges from
// Status in exactly one case: a user-requested pause. The backend has no real
// pause support, so pause never touches the authoritative Status - it is
// advisory until the backend contract grows one.
type DisplayStatus string

const (
	DisplayActive DisplayStatus = "active"
	DisplayPaused DisplayStatus = "paused"
)

// CreditShortage carries the structured numbers from an insufficient-credits
// failure. It is a distinct terminal sub-state, not a generic error: the
// recovery UX it drives is "recharge", not "retry".
type CreditShortage struct {
	Required  int `json:"credits_required"`
	Available int `json:"credits_available"`
	Needed    int `json:"credits_needed"`
}

// GenerationSession is the root aggregate for one book-generation job.
// The client owns it; the backend only mirrors it.
type GenerationSession struct {
	// SessionID is opaque and backend-assigned (the usage ID from the first
	// credits_deducted event); stable for the session's lifetime.
	SessionID string `json:"session_id,omitempty"`

	Status        Status        `json:"status"`
	DisplayStatus DisplayStatus `json:"display_status,omitempty"`

	// Progress is 0-100. The backend does not guarantee monotonicity;
	// see ApplyProgress.
	Progress int `json:"progress"`

	// Message is the latest human-readable status line, last-write-wins.
	Message string `json:"message,omitempty"`

	// StartedAt is set once when generation begins.
	StartedAt time.Time `json:"started_at,omitzero"`

	// ErrorMessage holds the failure text for StatusError sessions.
	ErrorMessage string `json:"error_message,omitempty"`

	// CreditShortage is set instead of ErrorMessage for the
	// insufficient-credits failure path.
	CreditShortage *CreditShortage `json:"credit_shortage,omitempty"`

	// LastEventID is the identifier of the most recently observed stream
	// event, reported on heartbeats so the backend can replay what we missed.
	LastEventID string `json:"last_event_id,omitempty"`
}

// ApplyProgress clamps p to [0,100] and refuses to move backwards.
func (s *GenerationSession) ApplyProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > s.Progress {
		s.Progress = p
	}
}

// Elapsed returns how long the session has been running as of now. Zero when
// generation has not started.
func (s *GenerationSession) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// IsStaleResume reports whether a still-generating session has been running
// longer than threshold - long enough that blind auto-resume is no longer
// safe and the caller should offer resume-or-restart.
func (s *GenerationSession) IsStaleResume(now time.Time, threshold time.Duration) bool {
	return s.Status == StatusGenerating && s.Elapsed(now) > threshold
}
