package server

import (
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

// projection is the latest known device and check-in state, reconstructed
// from agent messages. It is owned by the Registry and only ever touched
// under its mutex; readers get value copies. Not persisted: a restart resets
// it and the agent's first post-connect full status repopulates it.
type projection struct {
	device        protocol.DeviceStatus
	lastHeartbeat *time.Time
	today         checkins.Today
	schedule      schedule.Config
}

func (p *projection) snapshot(agentOnline bool) protocol.InitState {
	snap := protocol.InitState{
		AgentOnline:   agentOnline,
		Device:        p.device,
		TodayCheckins: p.today,
		Schedule:      p.schedule,
	}
	if p.lastHeartbeat != nil {
		hb := *p.lastHeartbeat
		snap.LastHeartbeat = &hb
	}
	return snap
}
