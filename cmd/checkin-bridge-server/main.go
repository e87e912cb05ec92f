package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
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
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Checkin Bridge Server", "version", AppVersion)

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", config.Timezone, "error", err)
		os.Exit(1)
	}

	if err := db.RunMigrations(config.Database.Url, config.Database.Schema); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.InitDB(ctx, config.Database.Url, config.Database.Schema)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	artifactStore, err := artifacts.NewStore(config.Artifacts.Dir)
	if err != nil {
		slog.Error("Failed to prepare artifact directory", "error", err)
		os.Exit(1)
	}

	checkinStore := checkins.NewStore(pool)
	deviceStore := devices.NewStore(pool)
	scheduleStore := schedule.NewStore(pool)
	usersService := users.NewService(pool)
	authService := auth.NewService(usersService, config.Http.JWT)

	registry := server.NewRegistry(checkinStore, deviceStore, scheduleStore, artifactStore, loc)
	if err := registry.Bootstrap(ctx); err != nil {
		slog.Error("Failed to bootstrap state projection", "error", err)
		os.Exit(1)
	}

	services := &internalhttp.Services{
		Registry:     registry,
		Auth:         authService,
		Checkins:     checkinStore,
		Devices:      deviceStore,
		Schedule:     scheduleStore,
		ArtifactsDir: artifactStore.Dir(),
		Location:     loc,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Agent-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, config.Http, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Stop()
		slog.Info("Connection registry stopped")
	}()

	wg.Wait()
	slog.Info("Shutdown complete")
}
