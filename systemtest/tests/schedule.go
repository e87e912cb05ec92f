package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRoundtrip(t *testing.T, router *gin.Engine, token string) {
	t.Run("seeded defaults", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/schedule", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var cfg schedule.Config
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
		assert.Equal(t, "08:30", cfg.MorningTime)
		assert.Equal(t, "18:30", cfg.EveningTime)
		assert.True(t, cfg.SkipWeekends)
	})

	t.Run("update and read back", func(t *testing.T) {
		update := schedule.Config{
			MorningTime:    "09:00",
			EveningTime:    "19:15",
			RandomDelayMax: 600,
			SkipWeekends:   true,
			SkipHolidays:   false,
		}
		rr := doJSONWithAuth(router, "PUT", "/api/schedule", update, token)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/schedule", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)

		var cfg schedule.Config
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
		assert.Equal(t, "09:00", cfg.MorningTime)
		assert.Equal(t, "19:15", cfg.EveningTime)
		assert.Equal(t, 600, cfg.RandomDelayMax)
		assert.False(t, cfg.SkipHolidays)
		assert.False(t, cfg.UpdatedAt.IsZero())
	})

	t.Run("rejects malformed time", func(t *testing.T) {
		update := schedule.Config{MorningTime: "25:99", EveningTime: "18:30", RandomDelayMax: 600}
		rr := doJSONWithAuth(router, "PUT", "/api/schedule", update, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects negative delay", func(t *testing.T) {
		update := schedule.Config{MorningTime: "08:30", EveningTime: "18:30", RandomDelayMax: -1}
		rr := doJSONWithAuth(router, "PUT", "/api/schedule", update, token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
