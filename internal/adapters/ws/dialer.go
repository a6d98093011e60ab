// Package ws connects the control channel to the SFU over gorilla websockets.
package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dkeye/voicegate/internal/app/sfu"
)

type Dialer struct {
	dialer    *websocket.Dialer
	readLimit int64
}

// NewDialer returns a Dialer whose connections refuse inbound frames larger
// than readLimit bytes. Zero means no limit.
func NewDialer(readLimit int64) *Dialer {
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy: http.ProxyFromEnvironment,
		},
		readLimit: readLimit,
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (sfu.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return conn, nil
}
