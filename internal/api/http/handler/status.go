package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/api/http/dto"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/server"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 90

	defaultDeviceSamples = 50
	maxDeviceSamples     = 500
)

type StatusHandler struct {
	registry *server.Registry
	store    *checkins.Store
	devices  *devices.Store
	loc      *time.Location
}

func NewStatusHandler(registry *server.Registry, store *checkins.Store, deviceStore *devices.Store, loc *time.Location) *StatusHandler {
	return &StatusHandler{registry: registry, store: store, devices: deviceStore, loc: loc}
}

// Status returns the live projection plus today's raw history rows.
func (h *StatusHandler) Status(c *gin.Context) {
	snap := h.registry.Snapshot()

	records, err := h.store.Day(c.Request.Context(), time.Now(), h.loc)
	if err != nil {
		slog.Error("Failed to query today's records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query history"})
		return
	}

	logs := make([]dto.CheckinLog, 0, len(records))
	for _, rec := range records {
		logs = append(logs, dto.CheckinLogFromRecord(rec))
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		AgentOnline:   snap.AgentOnline,
		DeviceStatus:  snap.Device,
		LastHeartbeat: snap.LastHeartbeat,
		TodayCheckins: snap.TodayCheckins,
		TodayLogs:     logs,
		Schedule:      snap.Schedule,
	})
}

// History returns check-in records for the past N days (1..90, default 7).
func (h *StatusHandler) History(c *gin.Context) {
	days := defaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 90"})
			return
		}
		days = parsed
	}

	now := time.Now().In(h.loc)
	since := now.AddDate(0, 0, -days)
	records, err := h.store.Between(c.Request.Context(), since, now)
	if err != nil {
		slog.Error("Failed to query history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query history"})
		return
	}

	logs := make([]dto.CheckinLog, 0, len(records))
	for _, rec := range records {
		logs = append(logs, dto.CheckinLogFromRecord(rec))
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{Logs: logs, Days: days})
}

// DeviceHistory returns recent device status samples, newest first
// (1..500, default 50).
func (h *StatusHandler) DeviceHistory(c *gin.Context) {
	limit := defaultDeviceSamples
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxDeviceSamples {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	samples, err := h.devices.Latest(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to query device samples", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query device samples"})
		return
	}

	logs := make([]dto.DeviceSampleLog, 0, len(samples))
	for _, s := range samples {
		logs = append(logs, dto.DeviceSampleLogFromSample(s))
	}

	c.JSON(http.StatusOK, dto.DeviceHistoryResponse{Samples: logs})
}

// Today serves the derived today view. The agent's scheduler queries this
// before firing a slot so a restart cannot re-run an already satisfied slot.
func (h *StatusHandler) Today(c *gin.Context) {
	records, err := h.store.Day(c.Request.Context(), time.Now(), h.loc)
	if err != nil {
		slog.Error("Failed to query today's records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query history"})
		return
	}

	c.JSON(http.StatusOK, dto.TodayResponse{
		TodayCheckins: checkins.TodayFromRecords(records),
	})
}
