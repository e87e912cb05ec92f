package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/protocol"
)

// Conn is the subset of *websocket.Conn the registry uses. Narrowed so
// session logic can be exercised with in-memory fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type agentSession struct {
	conn     Conn
	sendCh   chan protocol.Envelope
	lastSeen time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

func (s *agentSession) close() {
	s.cancel()
	_ = s.conn.Close()
}

// HandleAgent runs the agent connection until it drops. At most one agent is
// active at a time: a new connection supersedes and closes any existing one,
// which models a device reboot or network flap, not multi-device fan-in.
func (r *Registry) HandleAgent(conn Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &agentSession{
		conn:     conn,
		sendCh:   make(chan protocol.Envelope, sendChannelBuffer),
		lastSeen: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}

	r.mu.Lock()
	prev := r.agent
	r.agent = session
	r.mu.Unlock()

	if prev != nil {
		slog.Warn("Agent already connected, replacing connection")
		prev.close()
	}

	slog.Info("Agent connected")
	r.broadcast(protocol.KindConnectionStatus, protocol.ConnectionStatus{AgentOnline: true})

	// Push the authoritative schedule right away so an agent that was
	// offline during a config change does not keep acting on a stale cache.
	r.mu.Lock()
	cfg := r.state.schedule
	r.mu.Unlock()
	if env, err := protocol.New(protocol.KindUpdateSchedule, protocol.UpdateSchedule{Config: cfg}); err == nil {
		select {
		case session.sendCh <- env:
		default:
		}
	}

	go r.agentWriteLoop(session)
	r.agentReadLoop(session)

	// Only detach if this session is still the current one; a replacement
	// has already taken over the slot otherwise.
	r.mu.Lock()
	current := r.agent == session
	if current {
		r.agent = nil
	}
	r.mu.Unlock()

	session.close()

	if current {
		slog.Info("Agent disconnected")
		r.broadcast(protocol.KindConnectionStatus, protocol.ConnectionStatus{AgentOnline: false})
	}
}

func (r *Registry) agentReadLoop(session *agentSession) {
	for {
		_, raw, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Agent read error", "error", err)
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			slog.Error("Malformed message from agent", "error", err)
			continue
		}

		r.mu.Lock()
		session.lastSeen = time.Now()
		r.mu.Unlock()

		r.handleAgentMessage(env)
	}
}

func (r *Registry) agentWriteLoop(session *agentSession) {
	for {
		select {
		case <-session.ctx.Done():
			return
		case env := <-session.sendCh:
			data, err := env.Encode()
			if err != nil {
				slog.Error("Failed to encode command", "kind", env.Kind, "error", err)
				continue
			}
			if err := session.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Error("Agent write error", "error", err)
				session.close()
				return
			}
			slog.Debug("Command sent to agent", "kind", env.Kind, "msg_id", env.MsgID)
		}
	}
}

// handleAgentMessage updates the projection, persists what needs persisting,
// and fans updates out to observers. Messages are processed in receipt order;
// protocol errors are logged and ignored so one bad payload cannot take the
// connection down.
func (r *Registry) handleAgentMessage(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindHeartbeat:
		r.handleHeartbeat(env)
	case protocol.KindFullStatus:
		r.handleFullStatus(env)
	case protocol.KindActionResult:
		r.handleActionResult(env)
	case protocol.KindScreenshotResult:
		r.handleScreenshotResult(env)
	case protocol.KindErrorReport:
		r.handleErrorReport(env)
	default:
		slog.Warn("Unknown message kind from agent", "kind", env.Kind)
	}
}

func (r *Registry) handleHeartbeat(env protocol.Envelope) {
	var hb protocol.Heartbeat
	if err := env.DecodePayload(&hb); err != nil {
		slog.Error("Bad heartbeat payload", "error", err)
		return
	}

	now := time.Now()
	r.mu.Lock()
	r.state.device = hb.DeviceStatus
	r.state.lastHeartbeat = &now
	r.mu.Unlock()

	r.broadcast(protocol.KindDeviceUpdate, protocol.DeviceUpdate{
		DeviceStatus:  hb.DeviceStatus,
		AgentOnline:   true,
		LastHeartbeat: &now,
	})
}

func (r *Registry) handleFullStatus(env protocol.Envelope) {
	var st protocol.FullStatus
	if err := env.DecodePayload(&st); err != nil {
		slog.Error("Bad full status payload", "error", err)
		return
	}

	now := time.Now()
	r.mu.Lock()
	r.state.device = st.DeviceStatus
	r.state.lastHeartbeat = &now
	r.state.today = st.TodayCheckins
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := r.statusLog.Insert(ctx, devices.Sample{
		BatteryLevel:    st.BatteryLevel,
		BatteryCharging: st.BatteryCharging,
		WifiSSID:        st.WifiSSID,
		WifiIP:          st.WifiIP,
		ScreenOn:        st.ScreenOn,
		ADBConnected:    st.ADBConnected,
	}); err != nil {
		slog.Error("Failed to persist device status sample", "error", err)
	}

	r.broadcast(protocol.KindDeviceUpdate, protocol.DeviceUpdate{
		DeviceStatus:  st.DeviceStatus,
		AgentOnline:   true,
		LastHeartbeat: &now,
	})
}

func (r *Registry) handleActionResult(env protocol.Envelope) {
	var res protocol.ActionResult
	if err := env.DecodePayload(&res); err != nil {
		slog.Error("Bad action result payload", "error", err)
		return
	}

	artifactRef := ""
	if res.ScreenshotB64 != "" {
		ref, err := r.artifacts.SaveBase64(string(res.Kind), res.ScreenshotB64)
		if err != nil {
			slog.Error("Failed to save action screenshot", "error", err)
		} else {
			artifactRef = ref
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	rec := checkins.Record{
		Kind:        res.Kind,
		TriggeredAt: res.TriggeredAt,
		ExecutedAt:  res.ExecutedAt,
		Success:     res.Success,
		Trigger:     res.Trigger,
		Message:     res.Message,
		ArtifactRef: artifactRef,
	}
	if _, err := r.history.Append(ctx, rec); err != nil {
		slog.Error("Failed to append checkin record", "error", err)
	}

	// Recompute the derived view from history rather than patching it, so
	// the projection and a fresh query can never disagree.
	today := r.recomputeToday(ctx)

	slog.Info("Check-in result recorded",
		"kind", res.Kind,
		"success", res.Success,
		"trigger", res.Trigger)

	r.broadcast(protocol.KindCheckinUpdate, protocol.CheckinUpdate{
		Kind:          res.Kind,
		ExecutedAt:    res.ExecutedAt,
		Success:       res.Success,
		Trigger:       res.Trigger,
		Message:       res.Message,
		ArtifactRef:   artifactRef,
		TodayCheckins: today,
	})
}

func (r *Registry) recomputeToday(ctx context.Context) checkins.Today {
	records, err := r.history.Day(ctx, time.Now(), r.loc)
	if err != nil {
		slog.Error("Failed to requery today checkins", "error", err)
		r.mu.Lock()
		today := r.state.today
		r.mu.Unlock()
		return today
	}

	today := checkins.TodayFromRecords(records)
	r.mu.Lock()
	r.state.today = today
	r.mu.Unlock()
	return today
}

func (r *Registry) handleScreenshotResult(env protocol.Envelope) {
	var res protocol.ScreenshotResult
	if err := env.DecodePayload(&res); err != nil {
		slog.Error("Bad screenshot payload", "error", err)
		return
	}
	if res.ScreenshotB64 == "" {
		return
	}

	ref, err := r.artifacts.SaveBase64("manual", res.ScreenshotB64)
	if err != nil {
		slog.Error("Failed to save screenshot", "error", err)
		return
	}
	r.broadcast(protocol.KindArtifactUpdate, protocol.ArtifactUpdate{ArtifactRef: ref})
}

func (r *Registry) handleErrorReport(env protocol.Envelope) {
	var rep protocol.ErrorReport
	if err := env.DecodePayload(&rep); err != nil {
		slog.Error("Bad error report payload", "error", err)
		return
	}

	slog.Error("Agent error report", "code", rep.ErrorCode, "message", rep.Message, "context", rep.Context)

	artifactRef := ""
	if rep.ScreenshotB64 != "" {
		if ref, err := r.artifacts.SaveBase64("error", rep.ScreenshotB64); err == nil {
			artifactRef = ref
		}
	}

	r.broadcast(protocol.KindErrorUpdate, protocol.ErrorUpdate{
		ErrorCode:   rep.ErrorCode,
		Message:     rep.Message,
		ArtifactRef: artifactRef,
	})
}
