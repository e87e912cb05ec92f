package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/api/http/dto"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatusAndHistory seeds records through the store and verifies the REST
// views derived from them.
func TestStatusAndHistory(t *testing.T, router *gin.Engine, token, agentToken string, store *checkins.Store) {
	ctx := context.Background()
	now := time.Now()

	_, err := store.Append(ctx, checkins.Record{
		Kind:        checkins.ActionMorning,
		TriggeredAt: now.Add(-2 * time.Minute),
		ExecutedAt:  now.Add(-time.Minute),
		Success:     true,
		Trigger:     checkins.TriggerScheduled,
		Message:     "checked in",
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, checkins.Record{
		Kind:        checkins.ActionEvening,
		TriggeredAt: now.Add(-time.Minute),
		ExecutedAt:  now.Add(-30 * time.Second),
		Success:     false,
		Trigger:     checkins.TriggerManual,
		Message:     "button not found",
	})
	require.NoError(t, err)

	t.Run("status lists today's logs", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/status", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.StatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.AgentOnline)
		assert.Len(t, resp.TodayLogs, 2)
	})

	t.Run("history newest first", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/history?days=7", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.HistoryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 7, resp.Days)
		require.Len(t, resp.Logs, 2)
		assert.Equal(t, "evening", resp.Logs[0].Kind)
		assert.Equal(t, "morning", resp.Logs[1].Kind)
	})

	t.Run("today via agent token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/checkins/today", nil)
		req.Header.Set("X-Agent-Token", agentToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.TodayResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.TodayCheckins.Attempted(checkins.ActionMorning))
		assert.True(t, resp.TodayCheckins.Attempted(checkins.ActionEvening))
		assert.False(t, resp.TodayCheckins.Done(checkins.ActionEvening))

		// Only the morning record is a scheduled run; the manual evening
		// attempt must not consume the evening slot.
		assert.True(t, resp.TodayCheckins.ScheduledAttempted(checkins.ActionMorning))
		assert.False(t, resp.TodayCheckins.ScheduledAttempted(checkins.ActionEvening))
	})

	t.Run("today rejects bad agent token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/checkins/today", nil)
		req.Header.Set("X-Agent-Token", "wrong")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// TestDeviceHistory seeds device status samples and verifies the history
// endpoint returns them newest first.
func TestDeviceHistory(t *testing.T, router *gin.Engine, token string, store *devices.Store) {
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, devices.Sample{
		BatteryLevel: 90, BatteryCharging: true, WifiSSID: "office", ScreenOn: true, ADBConnected: true,
	}))
	require.NoError(t, store.Insert(ctx, devices.Sample{
		BatteryLevel: 88, WifiSSID: "office", ADBConnected: true,
	}))

	t.Run("newest first", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/device/history?limit=10", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.DeviceHistoryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Samples, 2)
		assert.Equal(t, 88, resp.Samples[0].BatteryLevel)
		assert.Equal(t, 90, resp.Samples[1].BatteryLevel)
		assert.True(t, resp.Samples[1].BatteryCharging)
		assert.False(t, resp.Samples[0].RecordedAt.IsZero())
	})

	t.Run("limit applies", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/device/history?limit=1", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.DeviceHistoryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Samples, 1)
		assert.Equal(t, 88, resp.Samples[0].BatteryLevel)
	})

	t.Run("invalid limit rejected", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/device/history?limit=0", nil, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/device/history?limit=junk", nil, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

// TestOfflineCommands verifies commands fail fast with no agent connected.
func TestOfflineCommands(t *testing.T, router *gin.Engine, token string) {
	t.Run("trigger checkin", func(t *testing.T) {
		body := dto.TriggerCheckinRequest{Kind: "morning"}
		rr := doJSONWithAuth(router, "POST", "/api/checkin", body, token)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("screenshot", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/screenshot", nil, token)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("invalid kind still 400", func(t *testing.T) {
		body := dto.TriggerCheckinRequest{Kind: "noon"}
		rr := doJSONWithAuth(router, "POST", "/api/checkin", body, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
