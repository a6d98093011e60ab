package signal

import "time"

type pongMessage struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
}

// handlePing answers application pings with the server clock in unix millis,
// so browsers can keep their socket warm and estimate skew.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, pongMessage{Type: "pong", Time: time.Now().UnixMilli()})
}
