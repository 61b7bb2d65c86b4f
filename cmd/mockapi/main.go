// Package main provides a mock BookForge backend for local development. It
// speaks the full generation protocol: the event stream (with deliberately
// awkward chunk boundaries), session status and control, heartbeat with
// missed-event replay, recovery, stored-book download, and a stub PDF.
package main

import (
	"encoding/base64"
	"encoding/json/v2"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	chapterDelay := flag.Duration("chapter-delay", 700*time.Millisecond, "delay between chapter events")
	failCredits := flag.Bool("fail-credits", false, "reject every job with an insufficient-credits error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := newServer(logger, *chapterDelay, *failCredits)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api/v1/books", func(r chi.Router) {
		r.Post("/generate-stream", srv.handleGenerateStream)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", srv.handleStatus)
			r.Post("/pause", srv.handleAck)
			r.Post("/resume", srv.handleAck)
			r.Post("/cancel", srv.handleCancel)
			r.Post("/heartbeat", srv.handleHeartbeat)
			r.Get("/recovery", srv.handleRecovery)
			r.Get("/stored", srv.handleStored)
			r.Get("/pdf", srv.handlePDF)
		})
	})

	logger.Info("mock backend listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// recordedEvent is one emitted event, kept for heartbeat/recovery replay.
type recordedEvent struct {
	Type    string         `json:"type"`
	EventID string         `json:"event_id,omitempty"`
	Data    map[string]any `json:"data"`
}

// mockSession is the server-side record of one generation job.
type mockSession struct {
	mu        sync.Mutex
	id        string
	status    string
	progress  int
	message   string
	chapters  int
	title     string
	author    string
	createdAt time.Time
	events    []recordedEvent
	book      map[string]any
}

func (s *mockSession) record(eventType string, data map[string]any) recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := recordedEvent{
		Type:    eventType,
		EventID: "evt-" + uuid.NewString(),
		Data:    data,
	}
	s.events = append(s.events, ev)
	return ev
}

func (s *mockSession) eventsAfter(lastEventID string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lastEventID == "" {
		out := make([]recordedEvent, len(s.events))
		copy(out, s.events)
		return out
	}
	for i, ev := range s.events {
		if ev.EventID == lastEventID {
			out := make([]recordedEvent, len(s.events)-i-1)
			copy(out, s.events[i+1:])
			return out
		}
	}
	return nil
}

type server struct {
	logger       *slog.Logger
	chapterDelay time.Duration
	failCredits  bool

	mu       sync.Mutex
	sessions map[string]*mockSession
}

func newServer(logger *slog.Logger, chapterDelay time.Duration, failCredits bool) *server {
	return &server{
		logger:       logger,
		chapterDelay: chapterDelay,
		failCredits:  failCredits,
		sessions:     make(map[string]*mockSession),
	}
}

func (s *server) session(id string) *mockSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt   string `json:"prompt"`
		Title    string `json:"title"`
		Author   string `json:"author"`
		Chapters int    `json:"chapters"`
	}
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Chapters <= 0 {
		req.Chapters = 3
	}
	if req.Title == "" {
		req.Title = "The Clockwork Meadow"
	}
	if req.Author == "" {
		req.Author = "A. Author"
	}

	sess := &mockSession{
		id:        "usage-" + uuid.NewString(),
		status:    "generating",
		chapters:  req.Chapters,
		title:     req.Title,
		author:    req.Author,
		createdAt: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	emit := func(eventType string, data map[string]any) bool {
		ev := sess.record(eventType, data)
		payload := map[string]any{"type": eventType, "event_id": ev.EventID}
		for k, v := range data {
			payload[k] = v
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return false
		}
		frame := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, raw)

		// Write the frame in two chunks split mid-payload, flushing between
		// them. Clients must reassemble frames across chunk boundaries.
		split := len(frame) / 2
		if _, err := fmt.Fprint(w, frame[:split]); err != nil {
			return false
		}
		flusher.Flush()
		if _, err := fmt.Fprint(w, frame[split:]); err != nil {
			return false
		}
		flusher.Flush()
		return r.Context().Err() == nil
	}

	setProgress := func(p int, msg string) {
		sess.mu.Lock()
		sess.progress = p
		sess.message = msg
		sess.mu.Unlock()
	}

	if !emit("start", map[string]any{"message": "Generation started"}) {
		return
	}

	if s.failCredits {
		sess.mu.Lock()
		sess.status = "error"
		sess.mu.Unlock()
		emit("error", map[string]any{
			"message":           "Not enough credits for this job",
			"error_code":        "INSUFFICIENT_CREDITS",
			"credits_required":  120,
			"credits_available": 40,
			"credits_needed":    80,
		})
		return
	}

	setProgress(5, "Credits deducted")
	if !emit("credits_deducted", map[string]any{"usage_id": sess.id, "message": "Credits deducted"}) {
		return
	}

	toc := make([]map[string]any, 0, sess.chapters)
	for i := 1; i <= sess.chapters; i++ {
		toc = append(toc, map[string]any{
			"title":          fmt.Sprintf("Chapter %d", i),
			"page":           (i-1)*12 + 1,
			"chapter_number": i,
		})
	}
	setProgress(10, "Structure planned")
	if !emit("structure", map[string]any{
		"message": "Structure planned",
		"data": map[string]any{
			"title":             sess.title,
			"author":            sess.author,
			"total_chapters":    sess.chapters,
			"table_of_contents": toc,
		},
	}) {
		return
	}

	chapters := make([]map[string]any, 0, sess.chapters)
	for i := 1; i <= sess.chapters; i++ {
		time.Sleep(s.chapterDelay)

		content := strings.Repeat(fmt.Sprintf("Paragraph %d of chapter %d. ", i, i), 20)
		ch := map[string]any{
			"chapter_number": i,
			"title":          fmt.Sprintf("Chapter %d", i),
			"content":        content,
			"word_count":     len(strings.Fields(content)),
			"sections":       []string{"Opening", "Middle", "Closing"},
			"completed":      true,
		}
		chapters = append(chapters, ch)

		pct := 10 + (85*i)/sess.chapters
		msg := fmt.Sprintf("Chapter %d of %d complete", i, sess.chapters)
		setProgress(pct, msg)
		if !emit("progress", map[string]any{"progress": pct, "message": msg}) {
			return
		}
		if !emit("chapter_complete", ch) {
			return
		}
	}

	book := map[string]any{
		"title":             sess.title,
		"author":            sess.author,
		"total_chapters":    sess.chapters,
		"total_words":       sess.chapters * 120,
		"total_images":      0,
		"generation_time":   time.Since(sess.createdAt).Seconds(),
		"table_of_contents": toc,
		"complete_chapters": chapters,
	}
	sess.mu.Lock()
	sess.book = book
	sess.status = "completed"
	sess.mu.Unlock()

	setProgress(100, "Generation complete")
	if !emit("complete", map[string]any{"progress": 100, "message": "Generation complete", "book_data": book}) {
		return
	}
	emit("stored", map[string]any{"usage_id": sess.id, "message": "Book stored"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	sess.mu.Lock()
	resp := map[string]any{
		"status": sess.status,
		"progress_info": map[string]any{
			"percent": sess.progress,
			"message": sess.message,
		},
		"created_at": sess.createdAt,
		"has_output": sess.book != nil,
	}
	sess.mu.Unlock()
	writeJSON(w, resp)
}

func (s *server) handleAck(w http.ResponseWriter, r *http.Request) {
	if s.session(chi.URLParam(r, "id")) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	sess.mu.Lock()
	refund := 0
	if sess.status == "generating" {
		sess.status = "cancelled"
		refund = 40
	}
	sess.mu.Unlock()
	writeJSON(w, map[string]any{
		"cancelled_at":     time.Now(),
		"credits_refunded": refund,
	})
}

func (s *server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	var req struct {
		LastReceivedEvent string `json:"last_received_event"`
	}
	_ = json.UnmarshalRead(r.Body, &req)

	missed := sess.eventsAfter(req.LastReceivedEvent)
	writeJSON(w, map[string]any{
		"server_timestamp":   time.Now(),
		"connection_healthy": true,
		"missed_events":      missed,
	})
}

func (s *server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	sess.mu.Lock()
	status := sess.status
	sess.mu.Unlock()
	writeJSON(w, map[string]any{
		"status": status,
		"events": sess.eventsAfter(r.URL.Query().Get("last_event_id")),
	})
}

func (s *server) handleStored(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	sess.mu.Lock()
	book := sess.book
	sess.mu.Unlock()
	if book == nil {
		http.NotFound(w, r)
		return
	}
	// Reshape to the stored-book contract: metadata block plus chapters.
	writeJSON(w, map[string]any{
		"metadata": map[string]any{
			"title":           book["title"],
			"author":          book["author"],
			"total_chapters":  book["total_chapters"],
			"total_words":     book["total_words"],
			"total_images":    book["total_images"],
			"generation_time": book["generation_time"],
		},
		"table_of_contents": book["table_of_contents"],
		"chapters":          book["complete_chapters"],
	})
}

// pdfStub is a minimal single-page PDF, enough to exercise download and save.
const pdfStub = "%PDF-1.4\n1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n"

func (s *server) handlePDF(w http.ResponseWriter, r *http.Request) {
	sess := s.session(chi.URLParam(r, "id"))
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"pdf_base64": base64.StdEncoding.EncodeToString([]byte(pdfStub)),
		"filename":   "book.pdf",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
