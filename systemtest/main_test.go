package systemtest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	internalhttp "github.com/pocketops/checkin-bridge/internal/api/http"
	"github.com/pocketops/checkin-bridge/internal/artifacts"
	"github.com/pocketops/checkin-bridge/internal/auth"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/db"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/pocketops/checkin-bridge/internal/server"
	"github.com/pocketops/checkin-bridge/internal/users"
	pgtest "github.com/pocketops/checkin-bridge/systemtest/postgres"
	"github.com/pocketops/checkin-bridge/systemtest/tests"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret  = "system-test-secret"
	agentToken = "system-test-agent-token"
)

// TestSystemIntegration boots the full server against a real Postgres and
// exercises the REST and websocket surfaces the way the agent and dashboard
// use them.
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()

	container, dbURL, err := pgtest.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgtest.Terminate(context.Background(), container) })

	require.NoError(t, db.RunMigrations(dbURL, ""))

	pool, err := db.InitDB(ctx, dbURL, "")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	artifactStore, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)

	checkinStore := checkins.NewStore(pool)
	deviceStore := devices.NewStore(pool)
	scheduleStore := schedule.NewStore(pool)
	usersService := users.NewService(pool)
	authService := auth.NewService(usersService, auth.JWTConfig{Secret: jwtSecret, TTL: time.Hour})

	registry := server.NewRegistry(checkinStore, deviceStore, scheduleStore, artifactStore, time.Local)
	t.Cleanup(registry.Stop)
	require.NoError(t, registry.Bootstrap(ctx))

	cfg := internalhttp.Config{
		JWT:        auth.JWTConfig{Secret: jwtSecret, TTL: time.Hour},
		AgentToken: agentToken,
	}
	services := &internalhttp.Services{
		Registry:     registry,
		Auth:         authService,
		Checkins:     checkinStore,
		Devices:      deviceStore,
		Schedule:     scheduleStore,
		ArtifactsDir: artifactStore.Dir(),
		Location:     time.Local,
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, cfg, services)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	t.Run("Register", func(t *testing.T) { tests.TestRegister(t, engine, jwtSecret) })
	t.Run("Login", func(t *testing.T) { tests.TestLogin(t, engine, jwtSecret) })

	token := tests.ObtainToken(t, engine, "systemuser")

	t.Run("ScheduleRoundtrip", func(t *testing.T) { tests.TestScheduleRoundtrip(t, engine, token) })
	t.Run("OfflineCommands", func(t *testing.T) { tests.TestOfflineCommands(t, engine, token) })
	t.Run("StatusAndHistory", func(t *testing.T) {
		tests.TestStatusAndHistory(t, engine, token, agentToken, checkinStore)
	})
	t.Run("DeviceHistory", func(t *testing.T) {
		tests.TestDeviceHistory(t, engine, token, deviceStore)
	})
	t.Run("AgentObserverFlow", func(t *testing.T) {
		tests.TestAgentObserverFlow(t, srv.URL, agentToken, token)
	})
}
