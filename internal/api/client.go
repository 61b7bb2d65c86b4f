// Package api is the REST client for the BookForge generation backend. The
// long-lived event stream lives in the stream package; everything with a
// plain request/response shape (status, session control, heartbeat, recovery,
// downloads) goes through here.
package api

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/ratelimit"
)

// Rate-limit keys, one bucket per endpoint class so heartbeat chatter cannot
// starve a cancel request.
const (
	limitControl   = "control"
	limitHeartbeat = "heartbeat"
	limitDownload  = "download"
)

const (
	defaultRPS     = 5.0
	defaultBurst   = 5
	defaultTimeout = 30 * time.Second
)

// Client is a rate-limited BookForge API client.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates a new API client rooted at baseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Status fetches the backend's view of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/"+sessionID+"/status", limitControl, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pause asks the backend to pause a session. Best-effort: the current backend
// acknowledges without actually halting generation. Callers should treat
// pause as advisory display state, not a guarantee.
func (c *Client) Pause(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, "/"+sessionID+"/pause", limitControl, nil, nil)
}

// Resume is the counterpart of Pause, with the same best-effort caveat.
func (c *Client) Resume(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodPost, "/"+sessionID+"/resume", limitControl, nil, nil)
}

// Cancel aborts a session server-side and reports refunded credits.
func (c *Client) Cancel(ctx context.Context, sessionID string) (*CancelResponse, error) {
	var out CancelResponse
	if err := c.doJSON(ctx, http.MethodPost, "/"+sessionID+"/cancel", limitControl, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat sends one liveness probe and returns the backend's health report
// plus any events the client missed.
func (c *Client) Heartbeat(ctx context.Context, sessionID string, req HeartbeatRequest) (*HeartbeatResponse, error) {
	var out HeartbeatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/"+sessionID+"/heartbeat", limitHeartbeat, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recovery fetches recorded events after lastEventID (all of them when empty).
func (c *Client) Recovery(ctx context.Context, sessionID, lastEventID string) (*RecoveryResponse, error) {
	path := "/" + sessionID + "/recovery"
	if lastEventID != "" {
		path += "?last_event_id=" + lastEventID
	}
	var out RecoveryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, limitControl, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stored fetches the complete stored book for a finished session, used to
// rehydrate the model after a restart.
func (c *Client) Stored(ctx context.Context, sessionID string) (*domain.Book, error) {
	var out domain.Book
	if err := c.doJSON(ctx, http.MethodGet, "/"+sessionID+"/stored", limitDownload, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PDF fetches the rendered book as a base64 payload plus suggested filename.
func (c *Client) PDF(ctx context.Context, sessionID string) (*PDFResponse, error) {
	var out PDFResponse
	if err := c.doJSON(ctx, http.MethodGet, "/"+sessionID+"/pdf", limitDownload, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON executes one rate-limited request with optional JSON body and
// decodes the JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path, limitKey string, body, out any) error {
	if err := c.limiter.Wait(ctx, limitKey); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "rate limit wait")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "encode request body")
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.CodeTransport, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return errors.Wrap(err, errors.CodeTransport, "read response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return errors.SessionNotFoundf("session %s not found", strings.Trim(path, "/"))
	case resp.StatusCode >= 500:
		return errors.Transportf("%s %s: server error %d", method, path, resp.StatusCode)
	default:
		return errors.Transportf("%s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(err, errors.CodeTransport, "decode %s response", path)
	}
	return nil
}
