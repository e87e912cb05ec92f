package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer accepts one connection at a time and forwards every decoded
// envelope to received.
type wsServer struct {
	srv      *httptest.Server
	received chan protocol.Envelope
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{
		received: make(chan protocol.Envelope, 64),
		conns:    make(chan *websocket.Conn, 4),
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			ws.received <- env
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) recv(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-ws.received:
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Envelope{}
	}
}

func mustEnvelope(t *testing.T, kind protocol.Kind, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.New(kind, payload)
	require.NoError(t, err)
	return env
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	c := NewClient("ws://nowhere", "")
	assert.Equal(t, initialDelay, c.reconnectDelay)

	var prev time.Duration
	for i := 0; i < 10; i++ {
		prev = c.reconnectDelay
		c.increaseReconnectDelay()
		assert.GreaterOrEqual(t, c.reconnectDelay, prev)
		assert.LessOrEqual(t, c.reconnectDelay, maxDelay)
	}
	assert.Equal(t, maxDelay, c.reconnectDelay)
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	c := NewClient("ws://nowhere", "")

	for i := 0; i < pendingQueueLimit+2; i++ {
		env := mustEnvelope(t, protocol.KindActionResult, nil)
		env.MsgID = fmt.Sprintf("msg-%d", i)
		require.NoError(t, c.Send(env))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.pending, pendingQueueLimit)
	assert.Equal(t, "msg-2", c.pending[0].MsgID)
	assert.Equal(t, fmt.Sprintf("msg-%d", pendingQueueLimit+1), c.pending[len(c.pending)-1].MsgID)
}

func TestQueueFlushedOldestFirstOnConnect(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), "secret")

	for i := 0; i < 3; i++ {
		env := mustEnvelope(t, protocol.KindActionResult, nil)
		env.MsgID = fmt.Sprintf("queued-%d", i)
		require.NoError(t, c.Send(env))
	}

	require.NoError(t, c.Start())
	defer c.Stop()

	for i := 0; i < 3; i++ {
		env := ws.recv(t)
		assert.Equal(t, fmt.Sprintf("queued-%d", i), env.MsgID)
	}
}

func TestInboundCommandsReachHandler(t *testing.T) {
	ws := newWSServer(t)

	got := make(chan protocol.Envelope, 1)
	c := NewClient(ws.url(), "")
	c.OnCommand(func(env protocol.Envelope) { got <- env })

	require.NoError(t, c.Start())
	defer c.Stop()

	select {
	case conn := <-ws.conns:
		env := mustEnvelope(t, protocol.KindRequestScreenshot, nil)
		data, err := env.Encode()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	case <-time.After(3 * time.Second):
		t.Fatal("client never connected")
	}

	select {
	case env := <-got:
		assert.Equal(t, protocol.KindRequestScreenshot, env.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestHeartbeatLoopSends(t *testing.T) {
	ws := newWSServer(t)

	c := NewClient(ws.url(), "")
	c.SetHeartbeat(func() (protocol.Envelope, error) {
		return protocol.New(protocol.KindHeartbeat, protocol.Heartbeat{
			DeviceStatus: protocol.DeviceStatus{BatteryLevel: 42},
		})
	}, 20*time.Millisecond)

	require.NoError(t, c.Start())
	defer c.Stop()

	env := ws.recv(t)
	require.Equal(t, protocol.KindHeartbeat, env.Kind)
	var hb protocol.Heartbeat
	require.NoError(t, env.DecodePayload(&hb))
	assert.Equal(t, 42, hb.BatteryLevel)
}

func TestOnConnectInvoked(t *testing.T) {
	ws := newWSServer(t)

	var mu sync.Mutex
	calls := 0
	c := NewClient(ws.url(), "")
	c.OnConnect(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.NoError(t, c.Start())
	defer c.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
}

func TestSendWhileConnectedDelivers(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), "")
	require.NoError(t, c.Start())
	defer c.Stop()

	require.Eventually(t, c.Connected, 3*time.Second, 10*time.Millisecond)

	env := mustEnvelope(t, protocol.KindErrorReport, protocol.ErrorReport{ErrorCode: "X"})
	require.NoError(t, c.Send(env))

	got := ws.recv(t)
	assert.Equal(t, protocol.KindErrorReport, got.Kind)
}
