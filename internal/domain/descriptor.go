package domain

// JoinDescriptor is handed to an end user so their client can open its own
// media session with the SFU. It is never persisted.
type JoinDescriptor struct {
	RoomID      RoomID `json:"room_id"`
	ServerID    string `json:"server_id"`
	ServerToken string `json:"server_token"`
	UserToken   string `json:"user_token"`
	SFUURL      string `json:"sfu_url"`
	Timestamp   int64  `json:"timestamp"`
}
