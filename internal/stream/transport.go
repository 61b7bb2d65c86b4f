// Package stream owns the long-lived generation connection: one HTTP POST
// whose response body is read chunk by chunk for the lifetime of the job
// (15-30 minutes), decoded through the sse parser, and dispatched to the
// owner in strict arrival order.
package stream

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/sse"
)

// readBufferSize is the chunk size for reading the streamed body. Frames are
// routinely split across reads; the parser reassembles them.
const readBufferSize = 16 * 1024

// Handlers receives the stream's output.
//
// OnEvent is invoked once per decoded frame, in arrival order. OnError is
// invoked at most once and is terminal. OnComplete is invoked exactly once
// when the stream ends cleanly. After Stop, further callbacks are suppressed
// best-effort: a callback already dispatched cannot be revoked.
type Handlers struct {
	OnEvent    func(sse.Event)
	OnError    func(error)
	OnComplete func()
}

// Transport runs at most one generation stream at a time. Multi-stream is
// deliberately unsupported: a second Start while one is active is a warning
// no-op.
type Transport struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	stopped *atomic.Bool // belongs to the current stream attempt
}

// New creates a transport for the given API base URL. The underlying HTTP
// client carries no overall timeout: the stream is expected to stay open for
// the whole generation job. Cancellation is the context's job.
func New(baseURL string, logger *slog.Logger) *Transport {
	return &Transport{
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Start opens the generation stream and dispatches its events to h from a
// background goroutine. Transport-level failures (connection refused, non-2xx
// status) surface through h.OnError; per-frame JSON problems never do - the
// parser degrades those to raw events.
//
// Returns ErrStreamActive without side effects when a stream is already
// running on this transport.
func (t *Transport) Start(ctx context.Context, payload any, h Handlers) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		t.logger.Warn("generation stream already active, ignoring start request")
		return errors.ErrStreamActive
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stopped := &atomic.Bool{}
	t.active = true
	t.cancel = cancel
	t.stopped = stopped
	t.mu.Unlock()

	go t.run(streamCtx, payload, h, stopped)
	return nil
}

// Stop aborts the underlying connection immediately. In-flight callbacks
// already dispatched are not revoked; anything after Stop is suppressed
// best-effort.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.stopped.Store(true)
	t.cancel()
	t.active = false
	t.logger.Debug("generation stream stopped")
}

// Active reports whether a stream is currently running.
func (t *Transport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// run performs the request and pumps the response body through the parser.
func (t *Transport) run(ctx context.Context, payload any, h Handlers, stopped *atomic.Bool) {
	defer t.finish()

	emitError := func(err error) {
		if stopped.Load() {
			return
		}
		h.OnError(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		emitError(errors.Wrap(err, errors.CodeInternal, "encode generation request"))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/generate-stream", strings.NewReader(string(body)))
	if err != nil {
		emitError(errors.Wrap(err, errors.CodeInternal, "create stream request"))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	started := time.Now()
	t.logger.Info("opening generation stream", "url", req.URL.String())

	resp, err := t.http.Do(req)
	if err != nil {
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		emitError(errors.Wrap(err, errors.CodeTransport, "open generation stream"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		emitError(errors.Transportf("stream request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail))))
		return
	}

	parser := sse.NewParser()
	buf := make([]byte, readBufferSize)
	eventCount := 0

	dispatch := func(events []sse.Event) {
		for _, ev := range events {
			if stopped.Load() {
				return
			}
			eventCount++
			h.OnEvent(ev)
		}
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			dispatch(parser.Feed(buf[:n]))
		}
		if readErr == nil {
			continue
		}
		if readErr == io.EOF {
			// A final frame without a trailing newline still counts.
			dispatch(parser.Flush())
			if !stopped.Load() {
				t.logger.Info("generation stream complete",
					"events", eventCount,
					"duration", time.Since(started),
				)
				h.OnComplete()
			}
			return
		}
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		emitError(errors.Wrap(readErr, errors.CodeTransport, "read generation stream"))
		return
	}
}

func (t *Transport) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}
