package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pocketops/checkin-bridge/internal/agent"
	"github.com/pocketops/checkin-bridge/internal/agent/automation"
	"github.com/pocketops/checkin-bridge/internal/agent/client"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Checkin Bridge Agent", "version", AppVersion)

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", config.Timezone, "error", err)
		os.Exit(1)
	}

	if err := config.Schedule.Validate(); err != nil {
		slog.Error("Invalid schedule config", "error", err)
		os.Exit(1)
	}

	adb := automation.NewADB(config.Device.AdbAddr)
	reader := automation.NewADBReader(adb)

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), time.Minute)
	if adb.EnsureConnected(setupCtx) {
		automation.KeepScreenOn(setupCtx, adb)
	} else {
		slog.Warn("No adb device at startup, continuing anyway")
	}
	cancelSetup()

	executor, err := automation.NewCommandExecutor(strings.Fields(config.Checkin.Command), adb, reader)
	if err != nil {
		slog.Error("Invalid check-in command", "error", err)
		os.Exit(1)
	}

	wsClient := client.NewClient(config.Server.WsURL, config.Server.Token)

	a := agent.New(agent.Options{
		Client:       wsClient,
		Reader:       reader,
		Executor:     executor,
		Schedule:     config.Schedule,
		Calendar:     schedule.NewCalendar(config.Calendar.Holidays, config.Calendar.WorkdayOverrides),
		Completion:   agent.NewServerCompletion(config.Server.ApiURL, config.Server.Token),
		RequiredSSID: config.Device.RequiredSSID,
		Location:     loc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		slog.Error("Agent error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
