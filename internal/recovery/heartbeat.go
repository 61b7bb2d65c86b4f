// Package recovery runs the liveness protocol that lets a generation job
// survive network trouble: a fixed-interval heartbeat carrying the last
// observed event ID, with missed-event replay on reconnect. Its lifecycle is
// independent of the stream transport - the owning session starts and stops
// both together.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/sse"
)

const (
	// DefaultInterval is the heartbeat period.
	DefaultInterval = 30 * time.Second
	// DefaultMaxMissed is how many consecutive failures are tolerated before
	// the connection is reported lost. One dropped packet must never flap
	// the UI into "disconnected".
	DefaultMaxMissed = 3
)

// Prober sends one heartbeat probe. Satisfied by *api.Client.
type Prober interface {
	Heartbeat(ctx context.Context, sessionID string, req api.HeartbeatRequest) (*api.HeartbeatResponse, error)
}

// Config tunes the heartbeat loop.
type Config struct {
	Interval  time.Duration
	MaxMissed int
}

// Callbacks receive the manager's output.
//
// OnDisconnect and OnReconnect are informational only: they fire on state
// transitions and must not mutate session state themselves. OnMissedEvents
// hands replayed events to the owner, which routes them through the same
// reducer path as live events - replay is not a separate code path.
type Callbacks struct {
	OnDisconnect   func()
	OnReconnect    func()
	OnMissedEvents func([]sse.Event)

	// LastEventID supplies the most recent event identifier the client has
	// observed, read fresh on every tick.
	LastEventID func() string
}

// Manager runs the heartbeat loop for one session.
type Manager struct {
	prober       Prober
	connectionID string
	cfg          Config
	cb           Callbacks
	logger       *slog.Logger

	mu        sync.Mutex
	sessionID string
	running   bool
	cancel    context.CancelFunc
	missed    int
	connected bool
}

// NewManager creates a heartbeat manager for the given session.
func NewManager(prober Prober, sessionID, connectionID string, cfg Config, cb Callbacks, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = DefaultMaxMissed
	}
	return &Manager{
		prober:       prober,
		sessionID:    sessionID,
		connectionID: connectionID,
		cfg:          cfg,
		cb:           cb,
		logger:       logger,
		connected:    true,
	}
}

// SetSessionID supplies the backend-assigned session identifier. The loop may
// start before the backend has handed one out; probes are held until it does.
func (m *Manager) SetSessionID(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

// Start launches the heartbeat loop. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	go m.loop(loopCtx)
}

// Stop halts the loop. The owning session must call this explicitly:
// stopping the stream transport does not stop heartbeats.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}

// Running reports whether the loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Connected reports the current liveness verdict.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe sends a single heartbeat and applies its result. Exposed so tests
// drive ticks directly instead of waiting on the clock.
func (m *Manager) Probe(ctx context.Context) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	if sessionID == "" {
		// No session yet: nothing to probe, nothing to count as missed.
		return
	}

	var lastEventID string
	if m.cb.LastEventID != nil {
		lastEventID = m.cb.LastEventID()
	}

	resp, err := m.prober.Heartbeat(ctx, sessionID, api.HeartbeatRequest{
		ClientTimestamp:   time.Now(),
		LastReceivedEvent: lastEventID,
		ConnectionID:      m.connectionID,
	})

	if err != nil || !resp.ConnectionHealthy {
		m.recordFailure(err)
		return
	}

	m.recordSuccess()

	if len(resp.MissedEvents) > 0 && m.cb.OnMissedEvents != nil {
		// Replay in backend order; the owner merges them through the normal
		// reducer path, so upsert and ordering invariants still hold.
		events := make([]sse.Event, 0, len(resp.MissedEvents))
		for _, me := range resp.MissedEvents {
			events = append(events, me.Event())
		}
		m.logger.Info("replaying missed events", "count", len(events), "session_id", sessionID)
		m.cb.OnMissedEvents(events)
	}
}

// recordFailure counts one missed heartbeat and reports disconnection only
// when the consecutive-failure threshold is crossed.
func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.missed++
	crossed := m.connected && m.missed >= m.cfg.MaxMissed
	if crossed {
		m.connected = false
	}
	missed := m.missed
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("heartbeat failed", "missed", missed, "error", err)
	} else {
		m.logger.Debug("backend reports connection unhealthy", "missed", missed)
	}

	if crossed && m.cb.OnDisconnect != nil {
		m.logger.Warn("connection lost", "missed_heartbeats", missed)
		m.cb.OnDisconnect()
	}
}

// recordSuccess resets the failure counter; a single healthy report restores
// the connected state.
func (m *Manager) recordSuccess() {
	m.mu.Lock()
	m.missed = 0
	restored := !m.connected
	if restored {
		m.connected = true
	}
	m.mu.Unlock()

	if restored && m.cb.OnReconnect != nil {
		m.logger.Info("connection restored")
		m.cb.OnReconnect()
	}
}
