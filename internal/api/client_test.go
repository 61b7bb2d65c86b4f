package api_test

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
)

func newClient(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := api.New(srv.URL, 5*time.Second, slog.New(slog.DiscardHandler))
	t.Cleanup(c.Close)
	return c
}

func TestClient_Status(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/status", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"status":"generating","progress_info":{"percent":40,"message":"writing"},"has_output":false}`)
	}))

	resp, err := c.Status(context.Background(), "usage-1")
	require.NoError(t, err)
	assert.Equal(t, "generating", resp.Status)
	require.NotNil(t, resp.ProgressInfo)
	assert.Equal(t, 40, resp.ProgressInfo.Percent)
}

func TestClient_NotFoundIsSessionNotFound(t *testing.T) {
	c := newClient(t, http.NotFoundHandler())

	_, err := c.Status(context.Background(), "usage-gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	_, err := c.Status(context.Background(), "usage-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestClient_AcceptsAny2xx(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/usage-1/pause":
			w.WriteHeader(http.StatusNoContent)
		case "/usage-1/cancel":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"cancelled_at":"2026-08-30T10:00:00Z","credits_refunded":15}`)
		default:
			http.NotFound(w, r)
		}
	}))

	require.NoError(t, c.Pause(context.Background(), "usage-1"))

	resp, err := c.Cancel(context.Background(), "usage-1")
	require.NoError(t, err)
	assert.Equal(t, 15, resp.CreditsRefunded)
}

func TestClient_Heartbeat(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/heartbeat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req api.HeartbeatRequest
		require.NoError(t, json.UnmarshalRead(r.Body, &req))
		assert.Equal(t, "evt-5", req.LastReceivedEvent)
		assert.Equal(t, "conn-1", req.ConnectionID)

		_, _ = io.WriteString(w, `{"connection_healthy":true,"missed_events":[{"type":"progress","event_id":"evt-6","data":{"progress":80}}]}`)
	}))

	resp, err := c.Heartbeat(context.Background(), "usage-1", api.HeartbeatRequest{
		ClientTimestamp:   time.Now(),
		LastReceivedEvent: "evt-5",
		ConnectionID:      "conn-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.ConnectionHealthy)
	require.Len(t, resp.MissedEvents, 1)

	ev := resp.MissedEvents[0].Event()
	assert.Equal(t, "evt-6", ev.ID)
	var data struct {
		Progress int `json:"progress"`
	}
	require.NoError(t, ev.Decode(&data))
	assert.Equal(t, 80, data.Progress)
}

func TestClient_RecoveryPassesLastEventID(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/recovery", r.URL.Path)
		assert.Equal(t, "evt-3", r.URL.Query().Get("last_event_id"))
		_, _ = io.WriteString(w, `{"status":"generating","events":[]}`)
	}))

	resp, err := c.Recovery(context.Background(), "usage-1", "evt-3")
	require.NoError(t, err)
	assert.Equal(t, "generating", resp.Status)
	assert.Empty(t, resp.Events)
}

func TestClient_Cancel(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/cancel", r.URL.Path)
		_, _ = io.WriteString(w, `{"cancelled_at":"2026-08-30T10:00:00Z","credits_refunded":40}`)
	}))

	resp, err := c.Cancel(context.Background(), "usage-1")
	require.NoError(t, err)
	assert.Equal(t, 40, resp.CreditsRefunded)
}

func TestClient_Stored(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/stored", r.URL.Path)
		_, _ = io.WriteString(w, `{"metadata":{"title":"Tides","total_chapters":1},"chapters":[{"chapter_number":1,"title":"One","content":"aaa","word_count":10,"completed":true}]}`)
	}))

	book, err := c.Stored(context.Background(), "usage-1")
	require.NoError(t, err)
	assert.Equal(t, "Tides", book.Metadata.Title)
	require.Len(t, book.Chapters, 1)
	assert.True(t, book.Chapters[0].Completed)
}

func TestClient_PDF(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage-1/pdf", r.URL.Path)
		_, _ = io.WriteString(w, `{"pdf_base64":"JVBERi0=","filename":"tides.pdf"}`)
	}))

	resp, err := c.PDF(context.Background(), "usage-1")
	require.NoError(t, err)
	assert.Equal(t, "tides.pdf", resp.Filename)
	assert.Equal(t, "JVBERi0=", resp.PDFBase64)
}
