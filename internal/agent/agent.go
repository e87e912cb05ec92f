// Package agent wires the connection client, the scheduler, and the device
// automation into the process that runs on (or next to) the phone.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketops/checkin-bridge/internal/agent/automation"
	"github.com/pocketops/checkin-bridge/internal/agent/client"
	"github.com/pocketops/checkin-bridge/internal/agent/scheduler"
	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

const heartbeatInterval = 30 * time.Second

// Transport is the connection client surface the agent drives. Satisfied by
// *client.Client.
type Transport interface {
	OnCommand(client.Handler)
	OnConnect(func())
	SetHeartbeat(func() (protocol.Envelope, error), time.Duration)
	Start() error
	Stop() error
	Send(protocol.Envelope) error
}

type Agent struct {
	client   Transport
	sched    *scheduler.Scheduler
	reader   automation.DeviceReader
	executor automation.Executor

	requiredSSID string
	loc          *time.Location
	remote       *ServerCompletion

	mu    sync.Mutex
	today checkins.Today
	day   string
}

type Options struct {
	Client       Transport
	Reader       automation.DeviceReader
	Executor     automation.Executor
	Schedule     schedule.Config
	Calendar     *schedule.Calendar
	Completion   scheduler.CompletionSource
	RequiredSSID string
	Location     *time.Location
}

func New(opts Options) *Agent {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	a := &Agent{
		client:       opts.Client,
		reader:       opts.Reader,
		executor:     opts.Executor,
		requiredSSID: opts.RequiredSSID,
		loc:          loc,
	}

	completion := opts.Completion
	if completion == nil {
		completion = localCompletion{a}
	}
	if sc, ok := completion.(*ServerCompletion); ok {
		a.remote = sc
		if sc.fallback == nil {
			sc.fallback = localCompletion{a}
		}
	}
	a.sched = scheduler.New(opts.Schedule, opts.Calendar, loc, completion, a.runScheduled)

	a.client.OnCommand(a.handleCommand)
	a.client.OnConnect(a.onConnect)
	a.client.SetHeartbeat(a.buildHeartbeat, heartbeatInterval)
	return a
}

// Run starts the connection client and drives the scheduler until the
// context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.client.Start(); err != nil {
		return err
	}
	a.sched.Run(ctx)
	return a.client.Stop()
}

// onConnect re-seeds the today mirror from the server's persisted history
// and pushes a full status message, so the projection repairs itself after
// every reconnect and a fresh agent restart does not report an empty day.
func (a *Agent) onConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.remote != nil {
		if today, err := a.remote.fetchToday(ctx); err != nil {
			slog.Warn("Could not seed today view from server", "error", err)
		} else {
			a.seedToday(today)
		}
	}
	a.sendFullStatus(ctx)
}

func (a *Agent) buildHeartbeat() (protocol.Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), heartbeatInterval)
	defer cancel()
	return protocol.New(protocol.KindHeartbeat, protocol.Heartbeat{
		DeviceStatus: a.reader.Read(ctx),
	})
}

func (a *Agent) sendFullStatus(ctx context.Context) {
	st := protocol.FullStatus{
		DeviceStatus:  a.reader.Read(ctx),
		TodayCheckins: a.todaySnapshot(),
		Schedule:      a.sched.Config(),
	}
	env, err := protocol.New(protocol.KindFullStatus, st)
	if err != nil {
		slog.Error("Failed to build full status", "error", err)
		return
	}
	if err := a.client.Send(env); err != nil {
		slog.Error("Failed to send full status", "error", err)
	}
}

// handleCommand dispatches inbound server commands. Long work runs in its
// own goroutine so the receive loop keeps draining; unknown kinds are
// ignored for forward compatibility.
func (a *Agent) handleCommand(env protocol.Envelope) {
	slog.Info("Command received", "kind", env.Kind, "msg_id", env.MsgID)

	switch env.Kind {
	case protocol.KindTriggerAction:
		var cmd protocol.TriggerAction
		if err := env.DecodePayload(&cmd); err != nil {
			slog.Error("Bad trigger payload", "error", err)
			return
		}
		if !cmd.Kind.Valid() {
			slog.Error("Trigger with unknown action kind", "kind", cmd.Kind)
			return
		}
		go a.runCheckin(context.Background(), cmd.Kind, checkins.TriggerManual)

	case protocol.KindRequestScreenshot:
		go a.sendScreenshot(context.Background())

	case protocol.KindRequestStatus:
		go a.sendFullStatus(context.Background())

	case protocol.KindUpdateSchedule:
		var cmd protocol.UpdateSchedule
		if err := env.DecodePayload(&cmd); err != nil {
			slog.Error("Bad schedule payload", "error", err)
			return
		}
		if err := cmd.Config.Validate(); err != nil {
			slog.Error("Rejected invalid schedule config", "error", err)
			return
		}
		a.sched.UpdateConfig(cmd.Config)

	default:
		slog.Warn("Unknown command kind", "kind", env.Kind)
	}
}

// runScheduled is the scheduler's fire callback. Scheduled runs honor the
// required-SSID guard: off the expected network the check-in would fail at
// the location step anyway, so report it as an error instead of burning the
// attempt.
func (a *Agent) runScheduled(ctx context.Context, kind checkins.ActionKind) {
	if a.requiredSSID != "" {
		st := a.reader.Read(ctx)
		if st.WifiSSID != a.requiredSSID {
			slog.Warn("Wifi mismatch, skipping scheduled check-in",
				"kind", kind, "current", st.WifiSSID, "required", a.requiredSSID)
			a.sendError("WIFI_MISMATCH",
				"wifi mismatch: current="+st.WifiSSID+" required="+a.requiredSSID,
				string(kind))
			return
		}
	}
	a.runCheckin(ctx, kind, checkins.TriggerScheduled)
}

func (a *Agent) runCheckin(ctx context.Context, kind checkins.ActionKind, trigger checkins.Trigger) {
	triggeredAt := time.Now()
	res := a.executor.Execute(ctx, kind)

	rec := checkins.Record{
		Kind:       kind,
		Success:    res.Success,
		Trigger:    trigger,
		Message:    res.Message,
		ExecutedAt: res.ExecutedAt,
	}
	a.applyRecord(rec)

	env, err := protocol.New(protocol.KindActionResult, protocol.ActionResult{
		Kind:          kind,
		TriggeredAt:   triggeredAt,
		ExecutedAt:    res.ExecutedAt,
		Success:       res.Success,
		Trigger:       trigger,
		Message:       res.Message,
		ScreenshotB64: res.ScreenshotB64,
	})
	if err != nil {
		slog.Error("Failed to build action result", "error", err)
		return
	}
	if err := a.client.Send(env); err != nil {
		slog.Error("Failed to send action result", "error", err)
	}
}

func (a *Agent) sendScreenshot(ctx context.Context) {
	b64, err := a.reader.Screenshot(ctx)
	if err != nil {
		slog.Error("Screenshot failed", "error", err)
		a.sendError("SCREENSHOT_FAILED", err.Error(), "")
		return
	}
	env, err := protocol.New(protocol.KindScreenshotResult, protocol.ScreenshotResult{ScreenshotB64: b64})
	if err != nil {
		return
	}
	if err := a.client.Send(env); err != nil {
		slog.Error("Failed to send screenshot", "error", err)
	}
}

func (a *Agent) sendError(code, message, detail string) {
	env, err := protocol.New(protocol.KindErrorReport, protocol.ErrorReport{
		ErrorCode: code,
		Message:   message,
		Context:   detail,
	})
	if err != nil {
		return
	}
	if err := a.client.Send(env); err != nil {
		slog.Error("Failed to send error report", "error", err)
	}
}

// applyRecord folds a result into the local today mirror, resetting it when
// the local date has rolled over since the last write.
func (a *Agent) applyRecord(rec checkins.Record) {
	day := rec.ExecutedAt.In(a.loc).Format("2006-01-02")

	a.mu.Lock()
	if a.day != day {
		a.today = checkins.Today{}
		a.day = day
	}
	a.today.Apply(rec)
	a.mu.Unlock()
}

func (a *Agent) todaySnapshot() checkins.Today {
	day := time.Now().In(a.loc).Format("2006-01-02")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.day != day {
		a.today = checkins.Today{}
		a.day = day
	}
	return a.today
}

// seedToday replaces the local mirror with an authoritative view, typically
// fetched from the server after a restart.
func (a *Agent) seedToday(today checkins.Today) {
	day := time.Now().In(a.loc).Format("2006-01-02")

	a.mu.Lock()
	a.today = today
	a.day = day
	a.mu.Unlock()
}

// localCompletion answers scheduler dedup checks from the in-memory mirror
// alone. Used when no server-backed completion source is configured. Only
// scheduled runs count: a manual check-in leaves the scheduled slot open.
type localCompletion struct {
	agent *Agent
}

func (l localCompletion) Attempted(ctx context.Context, day time.Time, kind checkins.ActionKind) (bool, error) {
	return l.agent.todaySnapshot().ScheduledAttempted(kind), nil
}
