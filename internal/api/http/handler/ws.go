package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pocketops/checkin-bridge/internal/api/http/middleware"
	"github.com/pocketops/checkin-bridge/internal/auth"
	"github.com/pocketops/checkin-bridge/internal/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins behind the CORS config,
	// so the websocket endpoints accept all origins as well.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	registry   *server.Registry
	agentToken string
	jwtSecret  string
}

func NewWSHandler(registry *server.Registry, agentToken, jwtSecret string) *WSHandler {
	return &WSHandler{
		registry:   registry,
		agentToken: agentToken,
		jwtSecret:  jwtSecret,
	}
}

// Agent upgrades the device agent's control channel. Authenticated with the
// shared agent token passed as a query parameter, the same way the agent
// authenticates its REST calls.
func (h *WSHandler) Agent(c *gin.Context) {
	if !middleware.CheckAgentToken(h.agentToken, c.Query("token")) {
		slog.Warn("Agent connection rejected: bad token", "client_ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid agent token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Agent websocket upgrade failed", "error", err)
		return
	}

	h.registry.HandleAgent(conn)
}

// Dashboard upgrades an observer connection. Browsers cannot set headers on
// websocket dials, so the JWT rides in a query parameter.
func (h *WSHandler) Dashboard(c *gin.Context) {
	if _, err := auth.ValidateToken(h.jwtSecret, c.Query("token")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Dashboard websocket upgrade failed", "error", err)
		return
	}

	h.registry.HandleObserver(conn)
}
