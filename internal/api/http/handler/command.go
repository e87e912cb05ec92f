package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/api/http/dto"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/server"
)

type CommandHandler struct {
	registry *server.Registry
}

func NewCommandHandler(registry *server.Registry) *CommandHandler {
	return &CommandHandler{registry: registry}
}

// TriggerCheckin forwards a manual check-in command to the agent. When the
// agent is offline the request fails with 503 instead of being queued.
func (h *CommandHandler) TriggerCheckin(c *gin.Context) {
	var req dto.TriggerCheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := checkins.ActionKind(req.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be morning or evening"})
		return
	}

	env, err := protocol.New(protocol.KindTriggerAction, protocol.TriggerAction{Kind: kind})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.dispatch(c, env)
}

// RequestScreenshot asks the agent for a fresh screenshot.
func (h *CommandHandler) RequestScreenshot(c *gin.Context) {
	env, err := protocol.New(protocol.KindRequestScreenshot, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.dispatch(c, env)
}

func (h *CommandHandler) dispatch(c *gin.Context, env protocol.Envelope) {
	if err := h.registry.SendCommand(env); err != nil {
		if errors.Is(err, server.ErrAgentOffline) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent offline"})
			return
		}
		slog.Error("Failed to send command", "kind", env.Kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send command"})
		return
	}

	c.JSON(http.StatusOK, dto.CommandAcceptedResponse{
		Message: "command sent",
		MsgID:   env.MsgID,
	})
}
