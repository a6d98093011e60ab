package sfu

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dkeye/voicegate/internal/domain"
)

const (
	EventServerRegister = "server_register"
	EventKeepAlive      = "keep_alive"
	EventRoomJoined     = "room_joined"
	EventRoomError      = "room_error"
)

// envelope is the wire frame on the control channel. Data carries the
// payload as a JSON encoded string.
type envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

type registerPayload struct {
	ServerID    string        `json:"server_id"`
	ServerToken string        `json:"server_token"`
	RoomID      domain.RoomID `json:"room_id"`
}

type keepAlivePayload struct {
	Timestamp int64  `json:"timestamp"`
	ServerID  string `json:"server_id"`
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: string(data)})
}

func registerEnvelope(id Identity, room domain.RoomID) ([]byte, error) {
	return encodeEnvelope(EventServerRegister, registerPayload{
		ServerID:    id.ServerID,
		ServerToken: id.ServerToken,
		RoomID:      room,
	})
}

func keepAliveEnvelope(id Identity, now time.Time) ([]byte, error) {
	return encodeEnvelope(EventKeepAlive, keepAlivePayload{
		Timestamp: now.UnixMilli(),
		ServerID:  id.ServerID,
	})
}

// decodeEnvelope returns the event name and its payload. The SFU sends data
// either as an object or as a JSON string wrapping one; both are accepted.
func decodeEnvelope(raw []byte) (string, gjson.Result) {
	if !gjson.ValidBytes(raw) {
		return "", gjson.Result{}
	}
	event := gjson.GetBytes(raw, "event").String()
	data := gjson.GetBytes(raw, "data")
	if data.Type == gjson.String && gjson.Valid(data.Str) {
		data = gjson.Parse(data.Str)
	}
	return event, data
}
