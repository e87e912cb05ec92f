package dto

import (
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
	"github.com/pocketops/checkin-bridge/internal/devices"
	"github.com/pocketops/checkin-bridge/internal/protocol"
	"github.com/pocketops/checkin-bridge/internal/schedule"
)

type StatusResponse struct {
	AgentOnline   bool                  `json:"agent_online"`
	DeviceStatus  protocol.DeviceStatus `json:"device_status"`
	LastHeartbeat *time.Time            `json:"last_heartbeat,omitempty"`
	TodayCheckins checkins.Today        `json:"today_checkins"`
	TodayLogs     []CheckinLog          `json:"today_logs"`
	Schedule      schedule.Config       `json:"schedule"`
}

type CheckinLog struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	TriggeredAt time.Time `json:"triggered_at"`
	ExecutedAt  time.Time `json:"executed_at"`
	Success     bool      `json:"success"`
	Trigger     string    `json:"trigger"`
	Message     string    `json:"message,omitempty"`
	ArtifactRef string    `json:"artifact_ref,omitempty"`
}

type HistoryResponse struct {
	Logs []CheckinLog `json:"logs"`
	Days int          `json:"days"`
}

type TodayResponse struct {
	TodayCheckins checkins.Today `json:"today_checkins"`
}

type TriggerCheckinRequest struct {
	Kind string `json:"kind" binding:"required"`
}

type CommandAcceptedResponse struct {
	Message string `json:"message"`
	MsgID   string `json:"msg_id"`
}

type DeviceSampleLog struct {
	ID              int64     `json:"id"`
	BatteryLevel    int       `json:"battery_level"`
	BatteryCharging bool      `json:"battery_charging"`
	WifiSSID        string    `json:"wifi_ssid"`
	WifiIP          string    `json:"wifi_ip"`
	ScreenOn        bool      `json:"screen_on"`
	ADBConnected    bool      `json:"adb_connected"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type DeviceHistoryResponse struct {
	Samples []DeviceSampleLog `json:"samples"`
}

func DeviceSampleLogFromSample(s devices.Sample) DeviceSampleLog {
	return DeviceSampleLog{
		ID:              s.ID,
		BatteryLevel:    s.BatteryLevel,
		BatteryCharging: s.BatteryCharging,
		WifiSSID:        s.WifiSSID,
		WifiIP:          s.WifiIP,
		ScreenOn:        s.ScreenOn,
		ADBConnected:    s.ADBConnected,
		RecordedAt:      s.RecordedAt,
	}
}

func CheckinLogFromRecord(rec checkins.Record) CheckinLog {
	return CheckinLog{
		ID:          rec.ID,
		Kind:        string(rec.Kind),
		TriggeredAt: rec.TriggeredAt,
		ExecutedAt:  rec.ExecutedAt,
		Success:     rec.Success,
		Trigger:     string(rec.Trigger),
		Message:     rec.Message,
		ArtifactRef: rec.ArtifactRef,
	}
}
