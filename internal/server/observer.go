package server

import (
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/protocol"
)

type observerSession struct {
	conn   Conn
	sendCh chan protocol.Envelope
	done   chan struct{}
}

func (o *observerSession) close() {
	select {
	case <-o.done:
	default:
		close(o.done)
	}
	_ = o.conn.Close()
}

// HandleObserver runs an observer connection until it drops. The observer
// receives a full state snapshot before any live update, which closes the
// race between connecting and the first push.
func (r *Registry) HandleObserver(conn Conn) {
	session := &observerSession{
		conn:   conn,
		sendCh: make(chan protocol.Envelope, observerChannelBuffer),
		done:   make(chan struct{}),
	}

	init, err := protocol.New(protocol.KindInitState, r.Snapshot())
	if err != nil {
		slog.Error("Failed to build init state", "error", err)
		_ = conn.Close()
		return
	}

	// Queue the snapshot before the session is visible to broadcast, so no
	// live update can be ordered ahead of it.
	session.sendCh <- init

	r.mu.Lock()
	r.observers[session] = struct{}{}
	count := len(r.observers)
	r.mu.Unlock()

	slog.Info("Observer connected", "total", count)

	go r.observerWriteLoop(session)
	r.observerReadLoop(session)

	r.mu.Lock()
	_, present := r.observers[session]
	delete(r.observers, session)
	count = len(r.observers)
	r.mu.Unlock()

	session.close()
	if present {
		slog.Info("Observer disconnected", "total", count)
	}
}

// observerReadLoop drains the connection. Observers issue commands over the
// REST API, not the socket, so inbound frames are read only to detect close
// and to keep control-frame processing alive.
func (r *Registry) observerReadLoop(session *observerSession) {
	for {
		if _, _, err := session.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Registry) observerWriteLoop(session *observerSession) {
	for {
		select {
		case <-session.done:
			return
		case env := <-session.sendCh:
			data, err := env.Encode()
			if err != nil {
				slog.Error("Failed to encode observer message", "kind", env.Kind, "error", err)
				continue
			}
			if err := session.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				session.close()
				return
			}
		}
	}
}
