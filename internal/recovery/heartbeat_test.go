package recovery_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/recovery"
	"github.com/bookforgeapp/bookforge-client/internal/sse"
)

// scriptedProber returns one scripted response per probe.
type scriptedProber struct {
	script   []probeResult
	calls    int
	requests []api.HeartbeatRequest
}

type probeResult struct {
	resp *api.HeartbeatResponse
	err  error
}

func healthy() probeResult {
	return probeResult{resp: &api.HeartbeatResponse{ServerTimestamp: time.Now(), ConnectionHealthy: true}}
}

func failed() probeResult {
	return probeResult{err: fmt.Errorf("connection refused")}
}

func (p *scriptedProber) Heartbeat(_ context.Context, _ string, req api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	p.requests = append(p.requests, req)
	r := p.script[p.calls%len(p.script)]
	p.calls++
	return r.resp, r.err
}

type transitions struct {
	disconnects int
	reconnects  int
}

func newManager(p recovery.Prober, tr *transitions, maxMissed int) *recovery.Manager {
	return recovery.NewManager(p, "usage-1", "conn-1",
		recovery.Config{Interval: time.Minute, MaxMissed: maxMissed},
		recovery.Callbacks{
			OnDisconnect: func() { tr.disconnects++ },
			OnReconnect:  func() { tr.reconnects++ },
			LastEventID:  func() string { return "evt-7" },
		},
		slog.New(slog.DiscardHandler),
	)
}

func TestManager_TwoMissesDoNotDisconnect(t *testing.T) {
	var tr transitions
	m := newManager(&scriptedProber{script: []probeResult{failed(), failed(), healthy()}}, &tr, 3)

	ctx := context.Background()
	m.Probe(ctx)
	m.Probe(ctx)
	assert.True(t, m.Connected(), "two misses stay within tolerance")
	assert.Zero(t, tr.disconnects)

	m.Probe(ctx)
	assert.True(t, m.Connected())
	assert.Zero(t, tr.reconnects, "never disconnected, so no reconnect either")
}

func TestManager_ThirdMissDisconnectsOnce(t *testing.T) {
	var tr transitions
	m := newManager(&scriptedProber{script: []probeResult{failed()}}, &tr, 3)

	ctx := context.Background()
	for range 5 {
		m.Probe(ctx)
	}
	assert.False(t, m.Connected())
	assert.Equal(t, 1, tr.disconnects, "disconnect fires on the transition, not every miss")
}

func TestManager_SingleSuccessReconnects(t *testing.T) {
	var tr transitions
	m := newManager(&scriptedProber{script: []probeResult{failed(), failed(), failed(), healthy()}}, &tr, 3)

	ctx := context.Background()
	for range 4 {
		m.Probe(ctx)
	}
	assert.True(t, m.Connected())
	assert.Equal(t, 1, tr.disconnects)
	assert.Equal(t, 1, tr.reconnects)
}

func TestManager_SuccessResetsMissCounter(t *testing.T) {
	// fail, fail, ok, fail, fail, ok, ... never reaches three consecutive.
	var tr transitions
	m := newManager(&scriptedProber{script: []probeResult{failed(), failed(), healthy()}}, &tr, 3)

	ctx := context.Background()
	for range 9 {
		m.Probe(ctx)
	}
	assert.True(t, m.Connected())
	assert.Zero(t, tr.disconnects)
}

func TestManager_UnhealthyReportCountsAsMiss(t *testing.T) {
	unhealthy := probeResult{resp: &api.HeartbeatResponse{ConnectionHealthy: false}}
	var tr transitions
	m := newManager(&scriptedProber{script: []probeResult{unhealthy}}, &tr, 2)

	ctx := context.Background()
	m.Probe(ctx)
	m.Probe(ctx)
	assert.False(t, m.Connected())
	assert.Equal(t, 1, tr.disconnects)
}

func TestManager_ReportsLastEventID(t *testing.T) {
	p := &scriptedProber{script: []probeResult{healthy()}}
	var tr transitions
	m := newManager(p, &tr, 3)

	m.Probe(context.Background())
	require.Len(t, p.requests, 1)
	assert.Equal(t, "evt-7", p.requests[0].LastReceivedEvent)
	assert.Equal(t, "conn-1", p.requests[0].ConnectionID)
	assert.False(t, p.requests[0].ClientTimestamp.IsZero())
}

func TestManager_MissedEventsReplayedInOrder(t *testing.T) {
	resp := &api.HeartbeatResponse{
		ConnectionHealthy: true,
		MissedEvents: []api.MissedEvent{
			{Type: "progress", EventID: "evt-8", Data: []byte(`{"progress":70}`)},
			{Type: "chapter_complete", EventID: "evt-9", Data: []byte(`{"chapter_number":5,"title":"Five","content":"x","word_count":1}`)},
		},
	}
	p := &scriptedProber{script: []probeResult{{resp: resp}}}

	var replayed []sse.Event
	m := recovery.NewManager(p, "usage-1", "conn-1",
		recovery.Config{Interval: time.Minute, MaxMissed: 3},
		recovery.Callbacks{
			OnMissedEvents: func(events []sse.Event) { replayed = append(replayed, events...) },
		},
		slog.New(slog.DiscardHandler),
	)

	m.Probe(context.Background())
	require.Len(t, replayed, 2)
	assert.Equal(t, sse.EventProgress, replayed[0].Type)
	assert.Equal(t, "evt-8", replayed[0].ID)
	assert.Equal(t, sse.EventChapterComplete, replayed[1].Type)
}

func TestManager_NoProbeWithoutSessionID(t *testing.T) {
	p := &scriptedProber{script: []probeResult{failed()}}
	var tr transitions
	m := recovery.NewManager(p, "", "conn-1",
		recovery.Config{Interval: time.Minute, MaxMissed: 3},
		recovery.Callbacks{OnDisconnect: func() { tr.disconnects++ }},
		slog.New(slog.DiscardHandler),
	)

	ctx := context.Background()
	m.Probe(ctx)
	assert.Zero(t, p.calls, "no session yet means no probe")
	assert.True(t, m.Connected())

	m.SetSessionID("usage-1")
	m.Probe(ctx)
	assert.Equal(t, 1, p.calls)
}

func TestManager_StartStopLifecycle(t *testing.T) {
	p := &scriptedProber{script: []probeResult{healthy()}}
	var tr transitions
	m := newManager(p, &tr, 3)

	assert.False(t, m.Running())
	m.Start(context.Background())
	assert.True(t, m.Running())
	m.Start(context.Background()) // second start is a no-op
	assert.True(t, m.Running())

	m.Stop()
	assert.False(t, m.Running())
	m.Stop() // idempotent
}
