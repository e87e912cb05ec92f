package protocol

import (
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

// DeviceStatus is the set of device readings carried by heartbeats and full
// status messages. Field names match what the dashboard consumes.
type DeviceStatus struct {
	BatteryLevel    int    `json:"battery_level"`
	BatteryCharging bool   `json:"battery_charging"`
	WifiSSID        string `json:"wifi_ssid"`
	WifiIP          string `json:"wifi_ip"`
	ScreenOn        bool   `json:"screen_on"`
	ADBConnected    bool   `json:"adb_connected"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// Heartbeat carries the periodic device readings while connected.
type Heartbeat struct {
	DeviceStatus
}

// ActionResult reports one completed check-in attempt, successful or not.
type ActionResult struct {
	Kind          checkins.ActionKind `json:"kind"`
	TriggeredAt   time.Time           `json:"triggered_at"`
	ExecutedAt    time.Time           `json:"executed_at"`
	Success       bool                `json:"success"`
	Trigger       checkins.Trigger    `json:"trigger"`
	Message       string              `json:"message,omitempty"`
	ScreenshotB64 string              `json:"screenshot_b64,omitempty"`
}

// FullStatus is sent on every (re)connect and on request; it repairs the
// server projection in one message.
type FullStatus struct {
	DeviceStatus
	TodayCheckins checkins.Today  `json:"today_checkins"`
	Schedule      schedule.Config `json:"schedule"`
}

type ScreenshotResult struct {
	ScreenshotB64 string `json:"screenshot_b64"`
}

type ErrorReport struct {
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
	Context       string `json:"context,omitempty"`
	ScreenshotB64 string `json:"screenshot_b64,omitempty"`
}

// TriggerAction asks the agent to run an action immediately, outside the
// schedule.
type TriggerAction struct {
	Kind checkins.ActionKind `json:"kind"`
}

// UpdateSchedule atomically replaces the agent's cached schedule config.
type UpdateSchedule struct {
	schedule.Config
}

// InitState is the first message every observer receives after connecting,
// closing the gap between "connect" and "first push".
type InitState struct {
	AgentOnline   bool            `json:"agent_online"`
	Device        DeviceStatus    `json:"device_status"`
	TodayCheckins checkins.Today  `json:"today_checkins"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
	Schedule      schedule.Config `json:"schedule"`
}

type DeviceUpdate struct {
	DeviceStatus
	AgentOnline   bool       `json:"agent_online"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

type CheckinUpdate struct {
	Kind          checkins.ActionKind `json:"kind"`
	ExecutedAt    time.Time           `json:"executed_at"`
	Success       bool                `json:"success"`
	Trigger       checkins.Trigger    `json:"trigger"`
	Message       string              `json:"message,omitempty"`
	ArtifactRef   string              `json:"artifact_ref,omitempty"`
	TodayCheckins checkins.Today      `json:"today_checkins"`
}

type ArtifactUpdate struct {
	ArtifactRef string `json:"artifact_ref"`
}

type ConnectionStatus struct {
	AgentOnline bool `json:"agent_online"`
}

type ErrorUpdate struct {
	ErrorCode   string `json:"error_code"`
	Message     string `json:"message"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
}
