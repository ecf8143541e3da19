package protocol

import (
	"encoding/json"

	"spot-tracker/internal/config"
)

// Message types
const (
	TypePing      = "ping"
	TypePong      = "pong"
	TypeStatus    = "status"
	TypeSetMode   = "set_mode"
	TypeManual    = "manual"
	TypeSetAngles = "set_angles"
	TypeTuning    = "tuning"
	TypeReset     = "reset"
	TypeError     = "error"
)

// Error codes
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrInvalidMode    = "INVALID_MODE"
	ErrPipeline       = "PIPELINE_ERROR"
)

// Step directions for manual messages
const (
	StepLeft  = "left"
	StepRight = "right"
	StepUp    = "up"
	StepDown  = "down"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload for status messages and GET /api/status
type StatusPayload struct {
	Mode       string  `json:"mode"`
	Phase      string  `json:"phase"`
	Pan        float64 `json:"pan"`
	Tilt       float64 `json:"tilt"`
	TargetX    int     `json:"target_x"`
	TargetY    int     `json:"target_y"`
	Tracking   bool    `json:"tracking"`
	LostFrames int     `json:"lost_frames"`
	Returning  bool    `json:"returning_to_center"`
	TargetH    string  `json:"target_h"`
	TargetV    string  `json:"target_v"`
	PanMotion  string  `json:"pan_motion"`
	TiltMotion string  `json:"tilt_motion"`

	Found      bool   `json:"found"`
	SpotX      int    `json:"spot_x"`
	SpotY      int    `json:"spot_y"`
	Confidence int    `json:"confidence"`
	Miss       string `json:"miss,omitempty"`
	MissStreak int    `json:"miss_streak"`
	Threshold  int    `json:"threshold"`

	Frames       uint64 `json:"frames"`
	Detections   uint64 `json:"detections"`
	DecodeErrors uint64 `json:"decode_errors"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

// SetModePayload for set_mode messages. Mode is "MANUAL" or "AUTO_TRACK".
type SetModePayload struct {
	Mode string `json:"mode"`
}

// ManualPayload for manual messages. Step moves by the fixed key step in
// the given direction; otherwise Pan and Tilt are relative deltas in
// degrees.
type ManualPayload struct {
	Step string  `json:"step,omitempty"`
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
}

// SetAnglesPayload for set_angles messages
type SetAnglesPayload struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
}

// TuningPayload uses the tuning file schema
type TuningPayload = config.TuningConfig

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: msgType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// StepDelta converts a step direction into pan and tilt deltas of size
// step. Up raises the tilt angle. Unknown directions report false.
func StepDelta(dir string, step float64) (pan, tilt float64, ok bool) {
	switch dir {
	case StepLeft:
		return -step, 0, true
	case StepRight:
		return step, 0, true
	case StepUp:
		return 0, step, true
	case StepDown:
		return 0, -step, true
	}
	return 0, 0, false
}
