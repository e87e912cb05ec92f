package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/pocketops/checkin-bridge/internal/server"
)

type ScheduleHandler struct {
	store    *schedule.Store
	registry *server.Registry
}

func NewScheduleHandler(store *schedule.Store, registry *server.Registry) *ScheduleHandler {
	return &ScheduleHandler{store: store, registry: registry}
}

func (h *ScheduleHandler) Get(c *gin.Context) {
	cfg, err := h.store.Get(c.Request.Context())
	if err != nil {
		slog.Error("Failed to load schedule", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schedule"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Put replaces the schedule config as a whole and pushes it to the agent if
// one is connected. An offline agent receives the current config when it next
// connects, so the update itself never fails on connectivity.
func (h *ScheduleHandler) Put(c *gin.Context) {
	var cfg schedule.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := h.store.Put(c.Request.Context(), cfg)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidTimeOfDay) || errors.Is(err, schedule.ErrInvalidDelay) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to store schedule", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store schedule"})
		return
	}

	h.registry.SetSchedule(stored)

	env, err := protocol.New(protocol.KindUpdateSchedule, protocol.UpdateSchedule{Config: stored})
	if err == nil {
		if sendErr := h.registry.SendCommand(env); sendErr != nil && !errors.Is(sendErr, server.ErrAgentOffline) {
			slog.Error("Failed to push schedule to agent", "error", sendErr)
		}
	}

	c.JSON(http.StatusOK, stored)
}
