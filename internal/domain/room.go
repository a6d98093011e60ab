package domain

import "strings"

const MaxRoomNameLen = 64

// RoomID is the identifier a room is registered under at the SFU.
// It is always namespaced with the owning server id.
type RoomID string

// NamespacedRoomID scopes a client-supplied room name to one server so that
// independent servers sharing an SFU never collide.
func NamespacedRoomID(serverID, raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomNameLen {
		return "", ErrInvalidRoomID
	}
	return RoomID(serverID + "_" + raw), nil
}
