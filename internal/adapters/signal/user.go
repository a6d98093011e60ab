package signal

import "github.com/dkeye/voicegate/internal/domain"

func (ctl *SignalWSController) handleWhoAmI(
	uid domain.UserID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"user_id"`
		Room   domain.RoomID `json:"room,omitempty"`
	}{
		Type:   "whoami",
		UserID: uid,
		Room:   conn.Room(),
	}
	ctl.sendJSON(conn, resp)
}
