// Package client owns the agent's single outbound websocket connection:
// connect loop with exponential backoff, send/receive/heartbeat pumps, and
// the bounded queue that holds outbound messages across connection gaps.
package client

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/protocol"
)

const (
	sendChannelBuffer = 100
	pendingQueueLimit = 64
	handshakeTimeout  = 10 * time.Second
	initialDelay      = 1 * time.Second
	maxDelay          = 60 * time.Second
	backoffFactor     = 2
)

// Handler processes one inbound command. It must not block: long work is
// dispatched to its own goroutine by the caller.
type Handler func(protocol.Envelope)

type Client struct {
	serverURL string
	token     string

	handler           Handler
	onConnect         func()
	heartbeat         func() (protocol.Envelope, error)
	heartbeatInterval time.Duration

	conn    *websocket.Conn
	sendCh  chan protocol.Envelope
	pending []protocol.Envelope

	stopCh chan struct{}
	doneCh chan struct{}

	reconnectDelay time.Duration

	mu sync.Mutex
}

func NewClient(serverURL, token string) *Client {
	return &Client{
		serverURL:         serverURL,
		token:             token,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		reconnectDelay:    initialDelay,
		heartbeatInterval: 30 * time.Second,
	}
}

// OnCommand registers the inbound command handler. Must be called before
// Start.
func (c *Client) OnCommand(h Handler) {
	c.handler = h
}

// OnConnect registers a callback invoked after every successful connect,
// once queued messages have been flushed. Used to push a full status so the
// server projection is never long stale after a reconnect.
func (c *Client) OnConnect(f func()) {
	c.onConnect = f
}

// SetHeartbeat registers the heartbeat message provider and interval. The
// heartbeat loop runs per connection; nothing is sent while disconnected.
func (c *Client) SetHeartbeat(f func() (protocol.Envelope, error), interval time.Duration) {
	c.heartbeat = f
	if interval > 0 {
		c.heartbeatInterval = interval
	}
}

func (c *Client) Start() error {
	go c.connectionLoop()
	return nil
}

func (c *Client) Stop() error {
	slog.Info("Stopping websocket client")
	close(c.stopCh)

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	<-c.doneCh
	slog.Info("Websocket client stopped")
	return nil
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send delivers an envelope to the server, or queues it while disconnected.
// The queue is bounded and best effort: on overflow the oldest entries are
// dropped in favor of newer ones.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	ch := c.sendCh
	if ch == nil {
		c.enqueueLocked(env)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	select {
	case ch <- env:
		return nil
	default:
		return fmt.Errorf("send channel full")
	}
}

func (c *Client) enqueueLocked(env protocol.Envelope) {
	if len(c.pending) >= pendingQueueLimit {
		drop := len(c.pending) - pendingQueueLimit + 1
		slog.Warn("Outbound queue full, dropping oldest", "dropped", drop)
		c.pending = append(c.pending[:0], c.pending[drop:]...)
	}
	c.pending = append(c.pending, env)
}

func (c *Client) connectionLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		default:
			if err := c.connect(); err != nil {
				slog.Error("Connection failed", "error", err, "retry_in", c.reconnectDelay)
				select {
				case <-time.After(c.reconnectDelay):
					c.increaseReconnectDelay()
					continue
				case <-c.stopCh:
					return
				}
			}

			c.reconnectDelay = initialDelay

			if c.onConnect != nil {
				go c.onConnect()
			}

			c.handleConn()
			c.disconnect()

			select {
			case <-c.stopCh:
				return
			default:
				slog.Info("Reconnecting", "delay", c.reconnectDelay)
				time.Sleep(c.reconnectDelay)
				c.increaseReconnectDelay()
			}
		}
	}
}

func (c *Client) connect() error {
	slog.Info("Connecting to server", "url", c.serverURL)

	dialURL := c.serverURL
	if c.token != "" {
		dialURL += "?token=" + url.QueryEscape(c.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(dialURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	sendCh := make(chan protocol.Envelope, sendChannelBuffer)

	// Flush messages queued during the gap, oldest first, before anything
	// produced on this connection.
	c.mu.Lock()
	for _, env := range c.pending {
		sendCh <- env
	}
	c.pending = nil
	c.conn = conn
	c.sendCh = sendCh
	c.mu.Unlock()

	slog.Info("Connected to server", "url", c.serverURL)
	return nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	ch := c.sendCh
	c.conn = nil
	c.sendCh = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	// Messages stranded in the channel go back to the queue so they survive
	// to the next connection.
	if ch != nil {
		for {
			select {
			case env := <-ch:
				c.mu.Lock()
				c.enqueueLocked(env)
				c.mu.Unlock()
			default:
				return
			}
		}
	}
}

func (c *Client) increaseReconnectDelay() {
	c.reconnectDelay = c.reconnectDelay * backoffFactor
	if c.reconnectDelay > maxDelay {
		c.reconnectDelay = maxDelay
	}
}

func (c *Client) handleConn() {
	done := make(chan struct{})
	errChan := make(chan error, 3)

	go c.receiveLoop(done, errChan)
	go c.sendLoop(done, errChan)
	go c.heartbeatLoop(done, errChan)

	select {
	case err := <-errChan:
		if err != nil {
			slog.Error("Connection error", "error", err)
		}
	case <-c.stopCh:
	}
	close(done)
}

func (c *Client) receiveLoop(done chan struct{}, errChan chan error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errChan <- fmt.Errorf("connection is nil")
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case errChan <- err:
			case <-done:
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			slog.Error("Malformed message from server", "error", err)
			continue
		}

		slog.Debug("Message received", "kind", env.Kind, "msg_id", env.MsgID)
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *Client) sendLoop(done chan struct{}, errChan chan error) {
	c.mu.Lock()
	conn := c.conn
	ch := c.sendCh
	c.mu.Unlock()
	if conn == nil || ch == nil {
		errChan <- fmt.Errorf("connection is nil")
		return
	}

	for {
		select {
		case <-done:
			return
		case env := <-ch:
			data, err := env.Encode()
			if err != nil {
				slog.Error("Failed to encode message", "kind", env.Kind, "error", err)
				continue
			}

			slog.Debug("Sending message", "kind", env.Kind, "msg_id", env.MsgID)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				select {
				case errChan <- err:
				case <-done:
				}
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop(done chan struct{}, errChan chan error) {
	if c.heartbeat == nil {
		return
	}

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			env, err := c.heartbeat()
			if err != nil {
				slog.Error("Failed to build heartbeat", "error", err)
				continue
			}
			if err := c.Send(env); err != nil {
				slog.Error("Failed to send heartbeat", "error", err)
			}
			slog.Debug("Heartbeat sent", "msg_id", env.MsgID)
		}
	}
}
