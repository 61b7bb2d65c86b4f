// Package session orchestrates one book-generation job end to end: it wires
// the stream transport, the reducer, the snapshot store, and the heartbeat
// recovery loop together, and owns the only mutable copy of the session state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/errors"
	"github.com/bookforgeapp/bookforge-client/internal/id"
	"github.com/bookforgeapp/bookforge-client/internal/media/images"
	"github.com/bookforgeapp/bookforge-client/internal/recovery"
	"github.com/bookforgeapp/bookforge-client/internal/reducer"
	"github.com/bookforgeapp/bookforge-client/internal/sse"
	"github.com/bookforgeapp/bookforge-client/internal/store"
	"github.com/bookforgeapp/bookforge-client/internal/stream"
	"github.com/bookforgeapp/bookforge-client/internal/validation"
)

// ResumeDecision is the verdict on a persisted snapshot found at startup.
type ResumeDecision int

const (
	// ResumeFresh means no usable snapshot exists; start from scratch.
	ResumeFresh ResumeDecision = iota
	// ResumeAuto means the interrupted session is recent enough to resume
	// without asking.
	ResumeAuto
	// ResumeAsk means the session has been running long enough that the user
	// should choose between resuming and restarting.
	ResumeAsk
)

// Callbacks receive the manager's output. All of them are optional and are
// invoked outside the manager's lock.
type Callbacks struct {
	// OnStateChange fires after every state transition with a copy of the new
	// state.
	OnStateChange func(reducer.State)
	// OnComplete fires exactly once per session, when the backend confirms the
	// book is stored. usageID identifies the billing record.
	OnComplete func(book domain.Book, usageID string)
	// OnError fires on terminal failures: transport errors, generation errors,
	// credit shortages.
	OnError func(error)
	// OnConnectionChange fires when heartbeat liveness flips. Informational
	// only; stream and state are unaffected.
	OnConnectionChange func(connected bool)
}

// Config carries the tunables the manager needs.
type Config struct {
	SnapshotTTL          time.Duration
	HeartbeatInterval    time.Duration
	MaxMissedHeartbeats  int
	StaleResumeThreshold time.Duration
}

// Manager runs one generation session at a time.
type Manager struct {
	transport *stream.Transport
	client    *api.Client
	snapshots store.SnapshotStore
	validator *validation.Validator
	enricher  *images.Enricher
	cfg       Config
	logger    *slog.Logger
	cb        Callbacks

	mu        sync.Mutex
	state     reducer.State
	heartbeat *recovery.Manager
	completed bool
}

// NewManager wires a manager from its collaborators.
func NewManager(
	transport *stream.Transport,
	client *api.Client,
	snapshots store.SnapshotStore,
	cfg Config,
	cb Callbacks,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		transport: transport,
		client:    client,
		snapshots: snapshots,
		validator: validation.New(),
		enricher:  images.NewEnricher(logger),
		cfg:       cfg,
		logger:    logger,
		cb:        cb,
		state:     reducer.NewState(),
	}
}

// SetCallbacks installs the output callbacks. Call before Generate or Resume;
// swapping callbacks mid-session races the stream.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.cb = cb
}

// State returns a copy of the current session state.
func (m *Manager) State() reducer.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return reducer.State{
		Session: m.state.Session,
		Book:    m.state.Book.Clone(),
	}
}

// Generate validates the request, resets the session, and opens the
// generation stream. Returns ErrStreamActive when a stream is already running.
func (m *Manager) Generate(ctx context.Context, req domain.GenerationRequest) error {
	if err := m.validator.Validate(req); err != nil {
		return err
	}
	if m.transport.Active() {
		// The running session's state must survive a rejected start.
		m.logger.Warn("generation already running, ignoring request")
		return errors.ErrStreamActive
	}

	m.mu.Lock()
	prevState, prevCompleted := m.state, m.completed
	m.state = reducer.NewState()
	m.completed = false
	m.mu.Unlock()

	if err := m.transport.Start(ctx, req, stream.Handlers{
		OnEvent:    func(ev sse.Event) { m.apply(ctx, ev) },
		OnError:    m.handleStreamError,
		OnComplete: m.handleStreamEnd,
	}); err != nil {
		// Lost a start race after the Active check; put the state back.
		m.mu.Lock()
		m.state, m.completed = prevState, prevCompleted
		m.mu.Unlock()
		return err
	}

	m.startHeartbeat(ctx)
	m.logger.Info("generation started", "chapters", req.Chapters, "style", req.Style)
	return nil
}

// CheckResume inspects the persisted snapshot and returns the resume verdict
// plus the snapshot state when one is usable. Completed and failed snapshots
// are cleared rather than offered.
func (m *Manager) CheckResume(ctx context.Context, now time.Time) (ResumeDecision, *reducer.State, error) {
	snap, err := m.snapshots.Load(ctx)
	if err != nil {
		return ResumeFresh, nil, err
	}
	if snap == nil {
		return ResumeFresh, nil, nil
	}

	s := snap.State
	if s.Session.Status.Terminal() || s.Session.Status == domain.StatusIdle {
		// Nothing to resume; drop the leftover snapshot.
		if err := m.snapshots.Clear(ctx); err != nil {
			m.logger.Warn("failed to clear stale snapshot", "error", err)
		}
		return ResumeFresh, nil, nil
	}

	if s.Session.IsStaleResume(now, m.cfg.StaleResumeThreshold) {
		return ResumeAsk, &s, nil
	}
	return ResumeAuto, &s, nil
}

// Resume restores the snapshot state and catches up via the recovery
// endpoint: every event missed since LastEventID is replayed through the same
// reducer path as live events, then heartbeats restart.
func (m *Manager) Resume(ctx context.Context, snapState reducer.State) error {
	m.mu.Lock()
	m.state = snapState
	m.completed = false
	sessionID := snapState.Session.SessionID
	lastEventID := snapState.Session.LastEventID
	m.mu.Unlock()

	if sessionID == "" {
		return errors.SessionNotFound("snapshot has no session identifier")
	}

	resp, err := m.client.Recovery(ctx, sessionID, lastEventID)
	if err != nil {
		return err
	}

	m.logger.Info("resuming session",
		"session_id", sessionID,
		"backend_status", resp.Status,
		"missed_events", len(resp.Events),
	)
	for _, me := range resp.Events {
		m.apply(ctx, me.Event())
	}

	m.mu.Lock()
	terminal := m.state.Session.Status.Terminal()
	m.mu.Unlock()
	if !terminal {
		m.startHeartbeat(ctx)
	}
	return nil
}

// Discard throws away any persisted snapshot so the next session starts clean.
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	m.state = reducer.NewState()
	m.mu.Unlock()
	return m.snapshots.Clear(ctx)
}

// Pause marks the session paused for display and tells the backend,
// best-effort. Generation continues server-side regardless; pause is a
// client-side presentation state until the backend supports more.
func (m *Manager) Pause(ctx context.Context) {
	m.mu.Lock()
	m.state.Session.DisplayStatus = domain.DisplayPaused
	sessionID := m.state.Session.SessionID
	st := m.snapshotLocked()
	m.mu.Unlock()

	if sessionID != "" {
		if err := m.client.Pause(ctx, sessionID); err != nil {
			m.logger.Warn("pause request failed", "session_id", sessionID, "error", err)
		}
	}
	m.notifyState(st)
}

// Unpause clears the paused display state, mirroring Pause.
func (m *Manager) Unpause(ctx context.Context) {
	m.mu.Lock()
	m.state.Session.DisplayStatus = domain.DisplayActive
	sessionID := m.state.Session.SessionID
	st := m.snapshotLocked()
	m.mu.Unlock()

	if sessionID != "" {
		if err := m.client.Resume(ctx, sessionID); err != nil {
			m.logger.Warn("resume request failed", "session_id", sessionID, "error", err)
		}
	}
	m.notifyState(st)
}

// Cancel aborts the session: the backend is told to stop, the stream and
// heartbeats are torn down, and the snapshot is cleared. The returned response
// reports refunded credits when the backend grants any.
func (m *Manager) Cancel(ctx context.Context) (*api.CancelResponse, error) {
	m.mu.Lock()
	sessionID := m.state.Session.SessionID
	m.mu.Unlock()

	var resp *api.CancelResponse
	if sessionID != "" {
		var err error
		resp, err = m.client.Cancel(ctx, sessionID)
		if err != nil {
			m.logger.Warn("cancel request failed", "session_id", sessionID, "error", err)
		}
	}

	m.teardown()

	m.mu.Lock()
	m.state.Session.Status = domain.StatusCancelled
	st := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.snapshots.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear snapshot after cancel", "error", err)
	}
	m.notifyState(st)
	if m.cb.OnError != nil {
		// Unblocks an owner waiting on the session verdict.
		m.cb.OnError(errors.Cancelled("generation cancelled"))
	}
	return resp, nil
}

// Status fetches the backend's view of the session.
func (m *Manager) Status(ctx context.Context) (*api.StatusResponse, error) {
	m.mu.Lock()
	sessionID := m.state.Session.SessionID
	m.mu.Unlock()
	if sessionID == "" {
		return nil, errors.SessionNotFound("no active session")
	}
	return m.client.Status(ctx, sessionID)
}

// Connected reports heartbeat liveness. True when no heartbeat loop runs.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	hb := m.heartbeat
	m.mu.Unlock()
	if hb == nil {
		return true
	}
	return hb.Connected()
}

// Close tears down the stream and the heartbeat loop together. The two
// lifecycles are deliberately coupled here and nowhere else.
func (m *Manager) Close() {
	m.teardown()
}

// apply routes one event - live or replayed - through the reducer and carries
// out the effects the transition requests.
func (m *Manager) apply(ctx context.Context, ev sse.Event) {
	m.mu.Lock()
	prevSessionID := m.state.Session.SessionID
	next, fx := reducer.Reduce(m.state, ev)

	if fx.ImageAttached != 0 {
		// Placeholder metadata for the image that just landed; best-effort,
		// computed before the state becomes visible.
		if i := next.Book.ChapterIndex(fx.ImageAttached); i >= 0 {
			imgs := next.Book.Chapters[i].Images
			if len(imgs) > 0 {
				m.enricher.Enrich(&imgs[len(imgs)-1])
			}
		}
	}

	m.state = next
	st := m.snapshotLocked()

	fireComplete := fx.Completed && !m.completed
	if fireComplete {
		m.completed = true
	}
	hb := m.heartbeat
	m.mu.Unlock()

	if hb != nil && prevSessionID == "" && st.Session.SessionID != "" {
		// The backend just assigned the session ID; heartbeats can begin.
		hb.SetSessionID(st.Session.SessionID)
	}

	if fx.Persist && !fx.Completed {
		// Best-effort: a failed save must never interrupt the stream.
		if err := m.snapshots.Save(ctx, store.NewSnapshot(st)); err != nil {
			m.logger.Warn("snapshot save failed", "error", err)
		}
	}

	m.notifyState(st)

	switch {
	case fireComplete:
		m.finishCompleted(ctx, st, fx.UsageID)
	case fx.CreditShortage != nil:
		m.teardown()
		if m.cb.OnError != nil {
			m.cb.OnError(errors.InsufficientCredits("insufficient credits for generation", fx.CreditShortage))
		}
	case fx.Failed:
		m.teardown()
		if m.cb.OnError != nil {
			m.cb.OnError(errors.GenerationFailed(st.Session.ErrorMessage))
		}
	}
}

// finishCompleted runs the completion path once: hydrate the final book from
// the stored-book endpoint when available, clear the snapshot, stop the
// loops, and fire the completion callback.
func (m *Manager) finishCompleted(ctx context.Context, st reducer.State, usageID string) {
	book := st.Book
	if usageID != "" {
		if stored, err := m.client.Stored(ctx, usageID); err != nil {
			m.logger.Debug("stored-book hydration skipped", "usage_id", usageID, "error", err)
		} else if stored != nil && len(stored.Chapters) > 0 {
			book = *stored
			m.mu.Lock()
			m.state.Book = stored.Clone()
			m.mu.Unlock()
		}
	}

	if err := m.snapshots.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear snapshot after completion", "error", err)
	}
	m.teardown()

	m.logger.Info("generation complete",
		"usage_id", usageID,
		"chapters", len(book.Chapters),
		"words", book.WordCount(),
	)
	if m.cb.OnComplete != nil {
		m.cb.OnComplete(book, usageID)
	}
}

func (m *Manager) handleStreamError(err error) {
	m.logger.Error("generation stream failed", "error", err)

	m.mu.Lock()
	st := m.snapshotLocked()
	m.mu.Unlock()

	// The persisted status stays whatever generation last reached, so a later
	// CheckResume still offers the session. A transport failure is exactly
	// the case resume exists for. Heartbeats stay up too, so reconnect
	// detection continues.
	if !st.Session.Status.Terminal() {
		if saveErr := m.snapshots.Save(context.Background(), store.NewSnapshot(st)); saveErr != nil {
			m.logger.Warn("snapshot save failed", "error", saveErr)
		}
	}

	m.notifyState(st)
	if m.cb.OnError != nil {
		m.cb.OnError(err)
	}
}

func (m *Manager) handleStreamEnd() {
	m.mu.Lock()
	terminal := m.state.Session.Status.Terminal()
	m.mu.Unlock()

	if terminal {
		return
	}
	// Stream closed cleanly but the protocol never reached a terminal event.
	// Treat like a disconnect: leave the snapshot for resume, and tell the
	// owner the session is no longer producing events.
	m.logger.Warn("stream ended before a terminal event")
	if m.cb.OnError != nil {
		m.cb.OnError(errors.StreamClosed("stream ended before a terminal event"))
	}
}

func (m *Manager) startHeartbeat(ctx context.Context) {
	m.mu.Lock()
	if m.heartbeat != nil {
		m.heartbeat.Stop()
	}
	sessionID := m.state.Session.SessionID
	hb := recovery.NewManager(
		m.client,
		sessionID,
		id.MustGenerate("conn"),
		recovery.Config{
			Interval:  m.cfg.HeartbeatInterval,
			MaxMissed: m.cfg.MaxMissedHeartbeats,
		},
		recovery.Callbacks{
			OnDisconnect: func() { m.notifyConnection(false) },
			OnReconnect:  func() { m.notifyConnection(true) },
			OnMissedEvents: func(events []sse.Event) {
				for _, ev := range events {
					m.apply(ctx, ev)
				}
			},
			LastEventID: func() string {
				m.mu.Lock()
				defer m.mu.Unlock()
				return m.state.Session.LastEventID
			},
		},
		m.logger,
	)
	m.heartbeat = hb
	m.mu.Unlock()

	hb.Start(ctx)
}

func (m *Manager) teardown() {
	m.transport.Stop()
	m.mu.Lock()
	hb := m.heartbeat
	m.heartbeat = nil
	m.mu.Unlock()
	if hb != nil {
		hb.Stop()
	}
}

// snapshotLocked copies the state; callers must hold m.mu.
func (m *Manager) snapshotLocked() reducer.State {
	return reducer.State{
		Session: m.state.Session,
		Book:    m.state.Book.Clone(),
	}
}

func (m *Manager) notifyState(st reducer.State) {
	if m.cb.OnStateChange != nil {
		m.cb.OnStateChange(st)
	}
}

func (m *Manager) notifyConnection(connected bool) {
	if m.cb.OnConnectionChange != nil {
		m.cb.OnConnectionChange(connected)
	}
}
