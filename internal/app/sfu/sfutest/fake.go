// Package sfutest provides in-memory control channel transports for tests.
package sfutest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/dkeye/voicegate/internal/app/sfu"
)

var ErrClosed = errors.New("sfutest: connection closed")

// Conn is a fake control connection. Inbound frames are queued with Push,
// outbound frames are recorded and can be inspected by event name.
type Conn struct {
	inbox chan []byte
	done  chan struct{}
	once  sync.Once

	mu          sync.Mutex
	writes      [][]byte
	writeErr    error
	closeFrames int
	gate        *writeGate
}

// writeGate parks writes until released. held receives once per parked write.
type writeGate struct {
	held chan struct{}
	open chan struct{}
	once sync.Once
}

func newWriteGate() *writeGate {
	return &writeGate{
		held: make(chan struct{}, 64),
		open: make(chan struct{}),
	}
}

func (g *writeGate) wait() {
	select {
	case g.held <- struct{}{}:
	default:
	}
	<-g.open
}

func (g *writeGate) release() { g.once.Do(func() { close(g.open) }) }

func NewConn() *Conn {
	return &Conn{
		inbox: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.done:
		return 0, nil, ErrClosed
	default:
	}
	select {
	case b := <-c.inbox:
		return websocket.TextMessage, b, nil
	case <-c.done:
		return 0, nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		gate.wait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.Closed() {
		return ErrClosed
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *Conn) WriteControl(mt int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mt == websocket.CloseMessage {
		c.closeFrames++
	}
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Push delivers an inbound frame to the channel's reader.
func (c *Conn) Push(frame []byte) { c.inbox <- frame }

// FailWrites makes every later write return err. Pass nil to recover.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *Conn) CloseFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFrames
}

// Sent returns the recorded frames whose envelope event matches.
func (c *Conn) Sent(event string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, w := range c.writes {
		if gjson.GetBytes(w, "event").String() == event {
			out = append(out, w)
		}
	}
	return out
}

// SentRooms lists room ids of recorded server_register envelopes in order.
func (c *Conn) SentRooms() []string {
	var out []string
	for _, w := range c.Sent(sfu.EventServerRegister) {
		data := gjson.GetBytes(w, "data").String()
		out = append(out, gjson.Get(data, "room_id").String())
	}
	return out
}

// Dialer hands out a fresh Conn per successful dial.
type Dialer struct {
	mu       sync.Mutex
	conns    []*Conn
	urls     []string
	failures []error
	failAll  error
	block    bool
	gate     *writeGate
}

func (d *Dialer) Dial(ctx context.Context, url string) (sfu.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	block := d.block
	var err error
	switch {
	case len(d.failures) > 0:
		err = d.failures[0]
		d.failures = d.failures[1:]
	case d.failAll != nil:
		err = d.failAll
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	conn := NewConn()
	d.mu.Lock()
	conn.gate = d.gate
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// FailNext queues errors returned by the next dials, in order.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// FailAlways makes every dial fail with err until reset with nil.
func (d *Dialer) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

// Block makes dials hang until their context is done.
func (d *Dialer) Block(b bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = b
}

// HoldWrites parks every write on connections dialed from now on until
// release is called. held signals each parked write.
func (d *Dialer) HoldWrites() (held <-chan struct{}, release func()) {
	g := newWriteGate()
	d.mu.Lock()
	d.gate = g
	d.mu.Unlock()
	return g.held, g.release
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *Dialer) Conns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conn returns the i-th connection handed out, or nil.
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// Eventually polls cond until it holds or two seconds pass.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}
