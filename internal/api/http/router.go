package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/api/http/handler"
	"github.com/pocketops/checkin-bridge/internal/api/http/middleware"
	"github.com/pocketops/checkin-bridge/internal/auth"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/schedule"
	"github.com/pocketops/checkin-bridge/internal/server"
)

type Services struct {
	Registry     *server.Registry
	Auth         *auth.Service
	Checkins     *checkins.Store
	Devices      *devices.Store
	Schedule     *schedule.Store
	ArtifactsDir string
	Location     *time.Location
}

func SetupRoute(engine *gin.Engine, cfg Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	engine.Static("/screenshots", srvs.ArtifactsDir)

	authHandler := handler.NewAuthHandler(srvs.Auth)
	statusHandler := handler.NewStatusHandler(srvs.Registry, srvs.Checkins, srvs.Devices, srvs.Location)
	commandHandler := handler.NewCommandHandler(srvs.Registry)
	scheduleHandler := handler.NewScheduleHandler(srvs.Schedule, srvs.Registry)
	wsHandler := handler.NewWSHandler(srvs.Registry, cfg.AgentToken, cfg.JWT.Secret)

	api := engine.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	// The agent queries the today view directly when planning, everything
	// else is dashboard-only.
	api.GET("/checkins/today", middleware.AgentOrJWTAuth(cfg.AgentToken, cfg.JWT.Secret), statusHandler.Today)

	authorized := api.Group("", middleware.JWTAuth(cfg.JWT.Secret))
	authorized.GET("/status", statusHandler.Status)
	authorized.GET("/history", statusHandler.History)
	authorized.GET("/device/history", statusHandler.DeviceHistory)
	authorized.POST("/checkin", commandHandler.TriggerCheckin)
	authorized.POST("/screenshot", commandHandler.RequestScreenshot)
	authorized.GET("/schedule", scheduleHandler.Get)
	authorized.PUT("/schedule", scheduleHandler.Put)

	engine.GET("/ws/agent", wsHandler.Agent)
	engine.GET("/ws/dashboard", wsHandler.Dashboard)
}
