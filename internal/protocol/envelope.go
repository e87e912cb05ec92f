package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags the semantic type of an envelope. Each channel direction has a
// closed set of known kinds; anything else is treated as KindUnknown and
// ignored by handlers so newer peers can talk to older ones.
type Kind string

// Agent -> server.
const (
	KindHeartbeat        Kind = "heartbeat"
	KindActionResult     Kind = "action_result"
	KindFullStatus       Kind = "full_status"
	KindScreenshotResult Kind = "screenshot_result"
	KindErrorReport      Kind = "error_report"
)

// Server -> agent.
const (
	KindTriggerAction     Kind = "trigger_action"
	KindRequestScreenshot Kind = "request_screenshot"
	KindRequestStatus     Kind = "request_status"
	KindUpdateSchedule    Kind = "update_schedule"
)

// Server -> observer.
const (
	KindInitState        Kind = "init_state"
	KindDeviceUpdate     Kind = "device_update"
	KindCheckinUpdate    Kind = "checkin_update"
	KindArtifactUpdate   Kind = "artifact_update"
	KindConnectionStatus Kind = "connection_status"
	KindErrorUpdate      Kind = "error_update"
)

const KindUnknown Kind = ""

// Envelope is the wire frame shared by the agent and observer channels:
// a kind tag, a message ID, a timestamp, and a kind-specific payload.
type Envelope struct {
	Kind  Kind            `json:"kind"`
	MsgID string          `json:"msg_id,omitempty"`
	TS    time.Time       `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope with a fresh message ID and the payload marshalled
// into Data. A nil payload leaves Data empty.
func New(kind Kind, payload any) (Envelope, error) {
	env := Envelope{
		Kind:  kind,
		MsgID: uuid.New().String(),
		TS:    time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Data = data
	}
	return env, nil
}

// Decode parses raw bytes into an envelope. Unknown kinds are not an error;
// the caller decides how to handle them.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's Data into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s has no payload", e.Kind)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}
