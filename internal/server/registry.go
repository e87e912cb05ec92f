// Package server hosts the connection registry: the single authoritative
// agent connection, the observer fan-out set, and the in-memory state
// projection they share.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

var ErrAgentOffline = errors.New("agent offline")

const (
	sendChannelBuffer     = 100
	observerChannelBuffer = 32
	sendTimeout           = 5 * time.Second
	livenessSweepInterval = 15 * time.Second

	// HeartbeatInterval is the cadence the agent sends heartbeats at while
	// connected. The liveness timeout must stay strictly greater.
	HeartbeatInterval      = 30 * time.Second
	defaultLivenessTimeout = 3 * HeartbeatInterval
)

// HistoryStore is the append/query surface of the check-in history.
type HistoryStore interface {
	Append(ctx context.Context, rec checkins.Record) (checkins.Record, error)
	Day(ctx context.Context, t time.Time, loc *time.Location) ([]checkins.Record, error)
}

// StatusLog persists device status samples reported in full status messages.
type StatusLog interface {
	Insert(ctx context.Context, sample devices.Sample) error
}

// ScheduleSource serves the current schedule config for snapshots.
type ScheduleSource interface {
	Get(ctx context.Context) (schedule.Config, error)
}

// ArtifactStore turns base64 screenshot payloads into opaque refs.
type ArtifactStore interface {
	SaveBase64(prefix, b64 string) (string, error)
}

type Registry struct {
	mu        sync.Mutex
	agent     *agentSession
	observers map[*observerSession]struct{}
	state     projection

	history   HistoryStore
	statusLog StatusLog
	schedules ScheduleSource
	artifacts ArtifactStore

	loc             *time.Location
	livenessTimeout time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

func NewRegistry(history HistoryStore, statusLog StatusLog, schedules ScheduleSource, artifacts ArtifactStore, loc *time.Location) *Registry {
	if loc == nil {
		loc = time.Local
	}
	r := &Registry{
		observers:       make(map[*observerSession]struct{}),
		history:         history,
		statusLog:       statusLog,
		schedules:       schedules,
		artifacts:       artifacts,
		loc:             loc,
		livenessTimeout: defaultLivenessTimeout,
		stopCh:          make(chan struct{}),
	}
	go r.livenessLoop()
	return r
}

// Bootstrap seeds the projection's derived fields from storage so observers
// joining before the agent reconnects still see today's check-ins and the
// current schedule.
func (r *Registry) Bootstrap(ctx context.Context) error {
	records, err := r.history.Day(ctx, time.Now(), r.loc)
	if err != nil {
		return fmt.Errorf("bootstrap today checkins: %w", err)
	}
	cfg, err := r.schedules.Get(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap schedule: %w", err)
	}

	r.mu.Lock()
	r.state.today = checkins.TodayFromRecords(records)
	r.state.schedule = cfg
	r.mu.Unlock()
	return nil
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	agent := r.agent
	r.agent = nil
	obs := make([]*observerSession, 0, len(r.observers))
	for o := range r.observers {
		obs = append(obs, o)
	}
	r.observers = make(map[*observerSession]struct{})
	r.mu.Unlock()

	if agent != nil {
		agent.close()
	}
	for _, o := range obs {
		o.close()
	}
}

// AgentOnline reports whether an agent connection is currently active.
func (r *Registry) AgentOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agent != nil
}

// Snapshot returns a copy of the current projection.
func (r *Registry) Snapshot() protocol.InitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.snapshot(r.agent != nil)
}

// SetSchedule records a freshly stored config in the projection so later
// snapshots reflect it even before the agent echoes it back.
func (r *Registry) SetSchedule(cfg schedule.Config) {
	r.mu.Lock()
	r.state.schedule = cfg
	r.mu.Unlock()
}

// SendCommand forwards a command to the connected agent. Commands issued
// while the agent is offline fail immediately; they are never queued, so the
// dashboard cannot mistake an absent device for a pending action.
func (r *Registry) SendCommand(env protocol.Envelope) error {
	r.mu.Lock()
	agent := r.agent
	r.mu.Unlock()

	if agent == nil {
		return ErrAgentOffline
	}

	select {
	case agent.sendCh <- env:
		slog.Debug("Command queued for agent", "kind", env.Kind, "msg_id", env.MsgID)
		return nil
	case <-agent.ctx.Done():
		return ErrAgentOffline
	case <-time.After(sendTimeout):
		return fmt.Errorf("timeout sending %s to agent", env.Kind)
	}
}

// broadcast fans an envelope out to every connected observer in call order.
// Observers that cannot keep up are dropped rather than allowed to stall the
// agent's message loop.
func (r *Registry) broadcast(kind protocol.Kind, payload any) {
	env, err := protocol.New(kind, payload)
	if err != nil {
		slog.Error("Failed to build observer message", "kind", kind, "error", err)
		return
	}

	r.mu.Lock()
	var stalled []*observerSession
	for o := range r.observers {
		select {
		case o.sendCh <- env:
		default:
			stalled = append(stalled, o)
			delete(r.observers, o)
		}
	}
	r.mu.Unlock()

	for _, o := range stalled {
		slog.Warn("Dropping slow observer")
		o.close()
	}
}

func (r *Registry) livenessLoop() {
	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.expireSilentAgent()
		case <-r.stopCh:
			return
		}
	}
}

// expireSilentAgent closes the agent connection when it has been silent
// longer than the liveness timeout, without waiting for the transport to
// notice. Closing the socket unwinds the read loop, which performs the
// normal detach and offline broadcast.
func (r *Registry) expireSilentAgent() {
	r.mu.Lock()
	agent := r.agent
	var silence time.Duration
	if agent != nil {
		silence = time.Since(agent.lastSeen)
	}
	r.mu.Unlock()

	if agent != nil && silence > r.livenessTimeout {
		slog.Warn("Agent liveness timeout, closing connection", "silence", silence)
		agent.close()
	}
}
