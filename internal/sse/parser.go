package sse

import (
	"bytes"
	"encoding/json/v2"
	"strings"
)

// Parser splits a raw chunk stream into decoded events. It keeps state across
// chunks so a frame split at any byte boundary still yields exactly one event.
// Parser is not safe for concurrent use; the transport feeds it from a single
// goroutine.
type Parser struct {
	buf       []byte
	eventType string // pending event: field value for the current frame
	seq       int
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk to the rolling buffer and returns every event whose
// frame is now complete. A trailing partial line stays buffered for the next
// chunk. Feed never fails: undecodable data: payloads degrade to raw events.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(p.buf[:idx])
		p.buf = p.buf[idx+1:]

		if ev, ok := p.consumeLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush processes any buffered final line once the stream has signalled
// completion. A stream whose last frame lacks a trailing newline still
// delivers that frame.
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		p.eventType = ""
		return nil
	}
	line := string(p.buf)
	p.buf = nil

	var events []Event
	if ev, ok := p.consumeLine(line); ok {
		events = append(events, ev)
	}
	p.eventType = ""
	return events
}

// consumeLine handles one complete line and reports whether it produced an event.
func (p *Parser) consumeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")

	// Blank line: frame separator. Clears any pending event: tag.
	if line == "" {
		p.eventType = ""
		return Event{}, false
	}

	// Comment lines per the SSE convention.
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	if value, ok := fieldValue(line, "event"); ok {
		p.eventType = strings.TrimSpace(value)
		return Event{}, false
	}

	if value, ok := fieldValue(line, "data"); ok {
		tag := p.eventType
		p.eventType = ""
		return p.decodeData(tag, value), true
	}

	// Unknown field: ignore, keep the pending event: tag for the data line
	// that should still follow.
	return Event{}, false
}

// decodeData turns one data: payload into an Event.
func (p *Parser) decodeData(tag, payload string) Event {
	p.seq++

	// Probe the payload for the fields the envelope needs. A decode failure
	// here means the payload is not JSON at all; emit a raw event instead of
	// failing the stream.
	var envelope struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return Event{
			Type:    EventMessage,
			Seq:     p.seq,
			Raw:     true,
			RawText: payload,
		}
	}

	etype := EventType(tag)
	if etype == "" {
		etype = EventType(envelope.Type)
	}
	if etype == "" {
		etype = EventMessage
	}

	return Event{
		Type: etype,
		Seq:  p.seq,
		ID:   envelope.EventID,
		Data: []byte(payload),
	}
}

// fieldValue matches an SSE field line ("data: ..." or "data:...") and
// returns the value with at most one leading space stripped.
func fieldValue(line, field string) (string, bool) {
	if !strings.HasPrefix(line, field) {
		return "", false
	}
	rest := line[len(field):]
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	rest = rest[1:]
	rest = strings.TrimPrefix(rest, " ")
	return rest, true
}
