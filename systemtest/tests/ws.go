package tests

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAgentObserverFlow runs the live protocol end to end against a real
// server: observer snapshot, agent attach, heartbeat fan-out, a reported
// check-in, singleton replacement, and the offline broadcast.
func TestAgentObserverFlow(t *testing.T, serverURL, agentToken, jwtToken string) {
	wsBase := "ws" + strings.TrimPrefix(serverURL, "http")

	t.Run("agent dial rejected with bad token", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsBase+"/ws/agent?token=wrong", nil)
		require.Error(t, err)
		if resp != nil {
			assert.Equal(t, 401, resp.StatusCode)
		}
		if conn != nil {
			conn.Close()
		}
	})

	dashboard, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/dashboard?token="+jwtToken, nil)
	require.NoError(t, err)
	defer dashboard.Close()

	env := readEnvelope(t, dashboard)
	require.Equal(t, protocol.KindInitState, env.Kind)
	var init protocol.InitState
	require.NoError(t, env.DecodePayload(&init))
	assert.False(t, init.AgentOnline)

	agent, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/agent?token="+agentToken, nil)
	require.NoError(t, err)
	defer agent.Close()

	// The server greets a fresh agent with the authoritative schedule.
	env = readEnvelope(t, agent)
	require.Equal(t, protocol.KindUpdateSchedule, env.Kind)

	env = readEnvelope(t, dashboard)
	require.Equal(t, protocol.KindConnectionStatus, env.Kind)
	var cs protocol.ConnectionStatus
	require.NoError(t, env.DecodePayload(&cs))
	assert.True(t, cs.AgentOnline)

	t.Run("heartbeat fans out", func(t *testing.T) {
		hb, err := protocol.New(protocol.KindHeartbeat, protocol.Heartbeat{
			DeviceStatus: protocol.DeviceStatus{BatteryLevel: 80, WifiSSID: "office"},
		})
		require.NoError(t, err)
		writeEnvelope(t, agent, hb)

		env := readEnvelope(t, dashboard)
		require.Equal(t, protocol.KindDeviceUpdate, env.Kind)
		var du protocol.DeviceUpdate
		require.NoError(t, env.DecodePayload(&du))
		assert.Equal(t, 80, du.BatteryLevel)
		assert.Equal(t, "office", du.WifiSSID)
		assert.True(t, du.AgentOnline)
		require.NotNil(t, du.LastHeartbeat)
	})

	t.Run("check-in result persists and fans out", func(t *testing.T) {
		now := time.Now()
		res, err := protocol.New(protocol.KindActionResult, protocol.ActionResult{
			Kind:        checkins.ActionMorning,
			TriggeredAt: now.Add(-time.Minute),
			ExecutedAt:  now,
			Success:     true,
			Trigger:     checkins.TriggerManual,
			Message:     "checked in",
		})
		require.NoError(t, err)
		writeEnvelope(t, agent, res)

		env := readEnvelope(t, dashboard)
		require.Equal(t, protocol.KindCheckinUpdate, env.Kind)
		var cu protocol.CheckinUpdate
		require.NoError(t, env.DecodePayload(&cu))
		assert.Equal(t, checkins.ActionMorning, cu.Kind)
		assert.True(t, cu.Success)
		assert.True(t, cu.TodayCheckins.Done(checkins.ActionMorning))
	})

	t.Run("second agent replaces the first", func(t *testing.T) {
		replacement, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/agent?token="+agentToken, nil)
		require.NoError(t, err)
		defer replacement.Close()

		env := readEnvelope(t, replacement)
		require.Equal(t, protocol.KindUpdateSchedule, env.Kind)

		// The superseded connection gets closed by the server.
		agent.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = agent.ReadMessage()
		assert.Error(t, err)

		// Dashboard sees the replacement come online.
		env = readEnvelope(t, dashboard)
		require.Equal(t, protocol.KindConnectionStatus, env.Kind)
		var cs protocol.ConnectionStatus
		require.NoError(t, env.DecodePayload(&cs))
		assert.True(t, cs.AgentOnline)

		replacement.Close()
		env = readEnvelope(t, dashboard)
		require.Equal(t, protocol.KindConnectionStatus, env.Kind)
		require.NoError(t, env.DecodePayload(&cs))
		assert.False(t, cs.AgentOnline)
	})
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}
