package api

import (
	"encoding/json/jsontext"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/sse"
)

// StatusResponse is the backend's view of a session, GET /{id}/status.
type StatusResponse struct {
	Status       string     `json:"status"`
	ProgressInfo *Progress  `json:"progress_info,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	HasOutput    bool       `json:"has_output"`
}

// Progress is the nested progress block of a status response.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// CancelResponse is the acknowledgement of POST /{id}/cancel.
type CancelResponse struct {
	CancelledAt     time.Time `json:"cancelled_at"`
	CreditsRefunded int       `json:"credits_refunded"`
}

// HeartbeatRequest is the liveness probe body, POST /{id}/heartbeat.
type HeartbeatRequest struct {
	ClientTimestamp   time.Time `json:"client_timestamp"`
	LastReceivedEvent string    `json:"last_received_event,omitempty"`
	ConnectionID      string    `json:"connection_id"`
}

// HeartbeatResponse reports connection health and any events the client
// missed since LastReceivedEvent.
type HeartbeatResponse struct {
	ServerTimestamp   time.Time     `json:"server_timestamp"`
	ConnectionHealthy bool          `json:"connection_healthy"`
	MissedEvents      []MissedEvent `json:"missed_events,omitempty"`
}

// MissedEvent is one stream event the backend recorded but the client did not
// receive live. It carries the same type tag and JSON payload as the live
// frame would have, so replay goes through the identical reducer path.
type MissedEvent struct {
	Type    string         `json:"type"`
	EventID string         `json:"event_id,omitempty"`
	Data    jsontext.Value `json:"data"`
}

// Event converts a missed event into its live-stream equivalent.
func (m MissedEvent) Event() sse.Event {
	return sse.Event{
		Type: sse.EventType(m.Type),
		ID:   m.EventID,
		Data: m.Data,
	}
}

// RecoveryResponse is the incremental recovered state, GET /{id}/recovery.
type RecoveryResponse struct {
	Status string        `json:"status"`
	Events []MissedEvent `json:"events,omitempty"`
}

// PDFResponse is the rendered book download, GET /{id}/pdf.
type PDFResponse struct {
	PDFBase64 string `json:"pdf_base64"`
	Filename  string `json:"filename"`
}
