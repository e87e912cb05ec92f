package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func todayServer(t *testing.T, today checkins.Today, wantToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/checkins/today", r.URL.Path)
		require.Equal(t, wantToken, r.Header.Get("X-Agent-Token"))
		_ = json.NewEncoder(w).Encode(map[string]checkins.Today{"today_checkins": today})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServerCompletionCountsOnlyScheduledRuns(t *testing.T) {
	executed := time.Now()
	today := checkins.Today{
		Morning:          &checkins.SlotStatus{Done: true, Time: &executed},
		EveningScheduled: true,
	}
	srv := todayServer(t, today, "secret")

	sc := NewServerCompletion(srv.URL, "secret")

	// Morning was only checked in manually: the slot stays open.
	attempted, err := sc.Attempted(context.Background(), time.Now(), checkins.ActionMorning)
	require.NoError(t, err)
	assert.False(t, attempted)

	attempted, err = sc.Attempted(context.Background(), time.Now(), checkins.ActionEvening)
	require.NoError(t, err)
	assert.True(t, attempted)
}

type staticCompletion struct{ attempted bool }

func (s staticCompletion) Attempted(context.Context, time.Time, checkins.ActionKind) (bool, error) {
	return s.attempted, nil
}

func TestServerCompletionFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sc := NewServerCompletion(srv.URL, "secret")
	sc.fallback = staticCompletion{attempted: true}

	attempted, err := sc.Attempted(context.Background(), time.Now(), checkins.ActionMorning)
	require.NoError(t, err)
	assert.True(t, attempted)
}

func TestServerCompletionErrorsWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sc := NewServerCompletion(srv.URL, "secret")
	_, err := sc.Attempted(context.Background(), time.Now(), checkins.ActionMorning)
	assert.Error(t, err)
}
