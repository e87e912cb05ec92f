package server

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn: reads block on a channel the test feeds,
// writes land on a channel the test drains.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw := <-c.in:
		return 1, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeHistory struct {
	mu      sync.Mutex
	records []checkins.Record
}

func (h *fakeHistory) Append(_ context.Context, rec checkins.Record) (checkins.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec.ID = int64(len(h.records) + 1)
	h.records = append(h.records, rec)
	return rec, nil
}

func (h *fakeHistory) Day(_ context.Context, _ time.Time, _ *time.Location) ([]checkins.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]checkins.Record, len(h.records))
	copy(out, h.records)
	return out, nil
}

type fakeStatusLog struct {
	mu      sync.Mutex
	samples []devices.Sample
}

func (l *fakeStatusLog) Insert(_ context.Context, s devices.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, s)
	return nil
}

type fakeSchedules struct{ cfg schedule.Config }

func (s fakeSchedules) Get(context.Context) (schedule.Config, error) { return s.cfg, nil }

type fakeArtifacts struct {
	mu   sync.Mutex
	refs []string
}

func (a *fakeArtifacts) SaveBase64(prefix, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ref := "/screenshots/" + prefix + ".jpg"
	a.refs = append(a.refs, ref)
	return ref, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeHistory, *fakeArtifacts) {
	t.Helper()
	history := &fakeHistory{}
	artifacts := &fakeArtifacts{}
	r := NewRegistry(history, &fakeStatusLog{}, fakeSchedules{cfg: schedule.DefaultConfig()}, artifacts, time.UTC)
	t.Cleanup(r.Stop)
	require.NoError(t, r.Bootstrap(context.Background()))
	return r, history, artifacts
}

func readEnvelope(t *testing.T, conn *fakeConn) protocol.Envelope {
	t.Helper()
	select {
	case raw := <-conn.out:
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Envelope{}
	}
}

func sendEnvelope(t *testing.T, conn *fakeConn, kind protocol.Kind, payload any) {
	t.Helper()
	env, err := protocol.New(kind, payload)
	require.NoError(t, err)
	raw, err := env.Encode()
	require.NoError(t, err)
	conn.in <- raw
}

func TestSendCommandOffline(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	env, err := protocol.New(protocol.KindTriggerAction, protocol.TriggerAction{Kind: checkins.ActionMorning})
	require.NoError(t, err)
	assert.ErrorIs(t, r.SendCommand(env), ErrAgentOffline)
}

func TestObserverReceivesInitStateFirst(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	obs := newFakeConn()
	go r.HandleObserver(obs)

	env := readEnvelope(t, obs)
	require.Equal(t, protocol.KindInitState, env.Kind)

	var init protocol.InitState
	require.NoError(t, env.DecodePayload(&init))
	assert.False(t, init.AgentOnline)
	assert.Equal(t, "08:30", init.Schedule.MorningTime)
}

func TestAgentLifecycle(t *testing.T) {
	r, history, artifacts := newTestRegistry(t)

	obs := newFakeConn()
	go r.HandleObserver(obs)
	require.Equal(t, protocol.KindInitState, readEnvelope(t, obs).Kind)

	agent := newFakeConn()
	go r.HandleAgent(agent)

	// The fresh agent is greeted with the authoritative schedule.
	require.Equal(t, protocol.KindUpdateSchedule, readEnvelope(t, agent).Kind)

	env := readEnvelope(t, obs)
	require.Equal(t, protocol.KindConnectionStatus, env.Kind)
	var cs protocol.ConnectionStatus
	require.NoError(t, env.DecodePayload(&cs))
	assert.True(t, cs.AgentOnline)
	assert.True(t, r.AgentOnline())

	t.Run("heartbeat updates projection and fans out", func(t *testing.T) {
		sendEnvelope(t, agent, protocol.KindHeartbeat, protocol.Heartbeat{
			DeviceStatus: protocol.DeviceStatus{BatteryLevel: 80},
		})

		env := readEnvelope(t, obs)
		require.Equal(t, protocol.KindDeviceUpdate, env.Kind)
		var du protocol.DeviceUpdate
		require.NoError(t, env.DecodePayload(&du))
		assert.Equal(t, 80, du.BatteryLevel)

		snap := r.Snapshot()
		assert.Equal(t, 80, snap.Device.BatteryLevel)
		require.NotNil(t, snap.LastHeartbeat)
	})

	t.Run("action result persists, saves artifact, fans out", func(t *testing.T) {
		sendEnvelope(t, agent, protocol.KindActionResult, protocol.ActionResult{
			Kind:          checkins.ActionMorning,
			ExecutedAt:    time.Now(),
			Success:       true,
			Trigger:       checkins.TriggerScheduled,
			Message:       "checked in",
			ScreenshotB64: base64.StdEncoding.EncodeToString([]byte("img")),
		})

		env := readEnvelope(t, obs)
		require.Equal(t, protocol.KindCheckinUpdate, env.Kind)
		var cu protocol.CheckinUpdate
		require.NoError(t, env.DecodePayload(&cu))
		assert.True(t, cu.Success)
		assert.Equal(t, "/screenshots/morning.jpg", cu.ArtifactRef)
		assert.True(t, cu.TodayCheckins.Done(checkins.ActionMorning))

		history.mu.Lock()
		require.Len(t, history.records, 1)
		assert.Equal(t, checkins.ActionMorning, history.records[0].Kind)
		history.mu.Unlock()

		artifacts.mu.Lock()
		assert.Len(t, artifacts.refs, 1)
		artifacts.mu.Unlock()

		assert.True(t, r.Snapshot().TodayCheckins.Done(checkins.ActionMorning))
	})

	t.Run("malformed message is ignored", func(t *testing.T) {
		agent.in <- []byte("{broken")
		sendEnvelope(t, agent, protocol.KindHeartbeat, protocol.Heartbeat{
			DeviceStatus: protocol.DeviceStatus{BatteryLevel: 70},
		})

		env := readEnvelope(t, obs)
		require.Equal(t, protocol.KindDeviceUpdate, env.Kind)
	})

	t.Run("command reaches the agent", func(t *testing.T) {
		env, err := protocol.New(protocol.KindRequestScreenshot, nil)
		require.NoError(t, err)
		require.NoError(t, r.SendCommand(env))

		got := readEnvelope(t, agent)
		assert.Equal(t, protocol.KindRequestScreenshot, got.Kind)
	})

	t.Run("disconnect broadcasts offline", func(t *testing.T) {
		agent.Close()

		env := readEnvelope(t, obs)
		require.Equal(t, protocol.KindConnectionStatus, env.Kind)
		var cs protocol.ConnectionStatus
		require.NoError(t, env.DecodePayload(&cs))
		assert.False(t, cs.AgentOnline)

		assert.Eventually(t, func() bool { return !r.AgentOnline() }, time.Second, 10*time.Millisecond)
	})
}

func TestAgentReplacement(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	first := newFakeConn()
	go r.HandleAgent(first)
	require.Equal(t, protocol.KindUpdateSchedule, readEnvelope(t, first).Kind)

	second := newFakeConn()
	go r.HandleAgent(second)
	require.Equal(t, protocol.KindUpdateSchedule, readEnvelope(t, second).Kind)

	// The superseded connection is forcibly closed; the replacement owns the
	// slot and stays online.
	assert.Eventually(t, first.isClosed, time.Second, 10*time.Millisecond)
	assert.True(t, r.AgentOnline())

	env, err := protocol.New(protocol.KindRequestStatus, nil)
	require.NoError(t, err)
	require.NoError(t, r.SendCommand(env))
	assert.Equal(t, protocol.KindRequestStatus, readEnvelope(t, second).Kind)
}

func TestSlowObserverDropped(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	obs := newFakeConn()
	go r.HandleObserver(obs)
	require.Equal(t, protocol.KindInitState, readEnvelope(t, obs).Kind)

	// Stop draining and stuff the observer past its channel buffer plus the
	// fake connection's write buffer.
	for i := 0; i < observerChannelBuffer+cap(obs.out)+8; i++ {
		r.broadcast(protocol.KindConnectionStatus, protocol.ConnectionStatus{AgentOnline: false})
	}

	assert.Eventually(t, obs.isClosed, time.Second, 10*time.Millisecond)
}

func TestLivenessTimeout(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.livenessTimeout = 50 * time.Millisecond

	agent := newFakeConn()
	go r.HandleAgent(agent)
	require.Equal(t, protocol.KindUpdateSchedule, readEnvelope(t, agent).Kind)

	// No traffic: the sweep should close the silent connection. The sweep
	// interval is seconds, so call it directly the way the ticker would.
	assert.Eventually(t, func() bool {
		r.expireSilentAgent()
		return agent.isClosed()
	}, 2*time.Second, 25*time.Millisecond)
}
