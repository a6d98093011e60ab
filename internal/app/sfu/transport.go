package sfu

import (
	"context"
	"time"
)

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	WriteControl(mt int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the control connection. It must honour ctx cancellation,
// the channel relies on that for its connection timeout.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
