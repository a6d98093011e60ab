package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicegate/internal/domain"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Options struct {
	ConnectTimeout       time.Duration
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	KeepAliveInterval    time.Duration
	WriteTimeout         time.Duration
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       10 * time.Second,
		BaseReconnectDelay:   time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		KeepAliveInterval:    15 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

// BackoffDelay is the wait before reconnect attempt n (1-based):
// base*2^(n-1), capped at max.
func (o Options) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := o.BaseReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.MaxReconnectDelay || d <= 0 {
			return o.MaxReconnectDelay
		}
	}
	return min(d, o.MaxReconnectDelay)
}

// Status is a point-in-time view of the channel for health endpoints.
type Status struct {
	State             State           `json:"state"`
	Healthy           bool            `json:"healthy"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	Exhausted         bool            `json:"exhausted"`
	LastPing          time.Time       `json:"last_ping"`
	ControlURL        string          `json:"control_url"`
	Registered        []domain.RoomID `json:"registered"`
	Pending           []domain.RoomID `json:"pending"`
}

// Channel owns the single control connection from this server to the SFU.
// Transport callbacks, reconnect timers and caller requests all funnel through
// mu, so every transition below happens in one place.
type Channel struct {
	id      Identity
	opts    Options
	dialer  Dialer
	metrics Recorder
	logger  zerolog.Logger
	rooms   *RoomRegistry

	mu       sync.Mutex
	state    State
	conn     Conn
	epoch    uint64 // bumped per attempt; stale transport events are dropped
	attempts int
	healthy  bool
	lastPing time.Time
	// closing is set by Disconnect and keeps the reconnect scheduler quiet.
	closing   bool
	exhausted bool
	timer     *time.Timer
	timerGen  uint64
	monitor   *HealthMonitor
}

func NewChannel(id Identity, dialer Dialer, opts Options, metrics Recorder) (*Channel, error) {
	if id.ServerID == "" || id.ServerToken == "" || id.SFUHost == "" {
		return nil, fmt.Errorf("%w: incomplete sfu identity", domain.ErrConfiguration)
	}
	if dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", domain.ErrConfiguration)
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Channel{
		id:      id,
		opts:    opts,
		dialer:  dialer,
		metrics: metrics,
		logger: log.With().
			Str("module", "sfu.channel").
			Str("server_id", id.ServerID).
			Logger(),
		rooms: NewRoomRegistry(),
	}, nil
}

func (c *Channel) Identity() Identity { return c.id }

func (c *Channel) Rooms() *RoomRegistry { return c.rooms }

func (c *Channel) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy && c.state == StateConnected
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:             c.state,
		Healthy:           c.healthy && c.state == StateConnected,
		ReconnectAttempts: c.attempts,
		Exhausted:         c.exhausted,
		LastPing:          c.lastPing,
		ControlURL:        c.id.ControlURL(),
		Registered:        c.rooms.Registered(),
		Pending:           c.rooms.Pending(),
	}
}

// Connect opens the control connection and reports the outcome of this one
// attempt. A failed attempt still hands over to the reconnect policy. Calling
// Connect supersedes any scheduled reconnect and resets the attempt budget.
// It is a no-op while the channel is up and fails with ErrChannelUnavailable
// while another attempt is in flight.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.closing = false
	c.exhausted = false
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return fmt.Errorf("%w: connect already in progress", domain.ErrChannelUnavailable)
	}
	c.attempts = 0
	epoch := c.beginAttemptLocked()
	c.mu.Unlock()

	return c.open(ctx, epoch)
}

// Disconnect is terminal: the connection is closed normally, registrations
// are forgotten and no reconnect is scheduled.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.stopTimerLocked()
	c.epoch++
	conn := c.conn
	c.conn = nil
	c.healthy = false
	c.stopMonitorLocked()
	c.rooms.Clear()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.metrics.PendingRooms(0)
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout)); err != nil {
		c.logger.Debug().Err(err).Msg("close frame not sent")
	}
	_ = conn.Close()
	c.logger.Info().Msg("disconnected")
}

// EnsureRegistered registers room with the SFU unless it already is.
// Registration state only changes under mu, so concurrent calls for the same
// room send a single envelope.
func (c *Channel) EnsureRegistered(room domain.RoomID) error {
	if room == "" {
		return domain.ErrInvalidRoomID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureRegisteredLocked(room)
}

// Unregister drops a torn-down room from both registered and pending sets.
// It waits for an in-flight registration so that one cannot revive the room.
func (c *Channel) Unregister(room domain.RoomID) {
	c.mu.Lock()
	c.rooms.Unregister(room)
	pending := len(c.rooms.Pending())
	c.mu.Unlock()

	c.metrics.PendingRooms(pending)
	c.logger.Info().Str("room_id", string(room)).Msg("room unregistered")
}

func (c *Channel) ensureRegisteredLocked(room domain.RoomID) error {
	if c.rooms.IsRegistered(room) {
		c.logger.Debug().Str("room_id", string(room)).Msg("room already registered")
		return nil
	}
	if c.state != StateConnected || c.conn == nil {
		return fmt.Errorf("%w: state %s", domain.ErrChannelUnavailable, c.state)
	}
	c.rooms.MarkPending(room)

	msg, err := registerEnvelope(c.id, room)
	if err != nil {
		return err
	}
	if err := c.sendLocked(msg); err != nil {
		c.metrics.RoomRegistrationFailed()
		c.dropConnLocked(err)
		return fmt.Errorf("%w: register %s: %v", domain.ErrChannelUnavailable, room, err)
	}
	c.rooms.MarkRegistered(room)
	c.metrics.RoomRegistered()
	c.logger.Info().Str("room_id", string(room)).Msg("room registered")
	return nil
}

func (c *Channel) sendLocked(msg []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Channel) beginAttemptLocked() uint64 {
	c.epoch++
	c.setStateLocked(StateConnecting)
	return c.epoch
}

// open dials the control URL for the attempt identified by epoch.
func (c *Channel) open(ctx context.Context, epoch uint64) error {
	url := c.id.ControlURL()
	c.logger.Info().Str("url", url).Msg("connecting")

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, url)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: no answer from %s within %s", domain.ErrTimeout, url, c.opts.ConnectTimeout)
		}
		c.handleClose(epoch, err)
		return err
	}
	c.handleOpen(epoch, conn)
	return nil
}

func (c *Channel) handleOpen(epoch uint64, conn Conn) {
	c.mu.Lock()
	if epoch != c.epoch || c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.exhausted = false
	c.healthy = true
	c.lastPing = time.Now()
	c.setStateLocked(StateConnected)

	c.stopMonitorLocked()
	c.monitor = NewHealthMonitor(c.opts.KeepAliveInterval, c.keepAlive,
		log.With().Str("module", "sfu.health").Str("server_id", c.id.ServerID).Logger())
	c.monitor.Start()
	c.mu.Unlock()

	c.logger.Info().Msg("connected")
	go c.readLoop(epoch, conn)
	go c.drainPending(epoch)
}

// handleClose moves the channel to disconnected exactly once per attempt and
// hands over to the reconnect policy unless Disconnect was requested.
func (c *Channel) handleClose(epoch uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.state == StateDisconnected {
		return
	}
	c.dropConnLocked(cause)
}

// dropConnLocked tears down the current connection after a transport failure.
// Registered rooms become pending and the reconnect policy takes over. The
// read loop of the dropped connection sees the channel already disconnected
// and returns quietly.
func (c *Channel) dropConnLocked(cause error) {
	if c.state == StateDisconnected {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.healthy = false
	c.stopMonitorLocked()
	moved := c.rooms.MarkAllPending()
	c.metrics.PendingRooms(len(c.rooms.Pending()))
	c.setStateLocked(StateDisconnected)

	c.logger.Warn().Err(cause).Int("rooms_pending", moved).Msg("control channel closed")
	if c.closing {
		return
	}
	c.scheduleReconnectLocked()
}

func (c *Channel) scheduleReconnectLocked() {
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.exhausted = true
		c.metrics.ReconnectsExhausted()
		c.logger.Error().Int("attempts", c.attempts).Msg("reconnect attempts exhausted, waiting for manual connect")
		return
	}
	c.attempts++
	delay := c.opts.BackoffDelay(c.attempts)
	c.metrics.ReconnectScheduled(c.attempts, delay)
	c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")

	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.closing || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	epoch := c.beginAttemptLocked()
	c.mu.Unlock()

	if err := c.open(context.Background(), epoch); err != nil {
		c.logger.Debug().Err(err).Msg("reconnect attempt failed")
	}
}

func (c *Channel) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) stopMonitorLocked() {
	if c.monitor != nil {
		c.monitor.Stop()
		c.monitor = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.StateChanged(s)
}

func (c *Channel) readLoop(epoch uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(epoch, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	event, payload := decodeEnvelope(data)

	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()

	switch event {
	case EventRoomJoined:
		c.logger.Info().Str("room_id", payload.Get("room_id").String()).Msg("sfu confirmed room")
	case EventRoomError:
		c.logger.Warn().
			Str("room_id", payload.Get("room_id").String()).
			Str("error", payload.Get("error").String()).
			Msg("sfu rejected room")
	default:
		c.logger.Debug().Str("event", event).Msg("ignoring control event")
	}
}

// drainPending re-sends registrations queued while the channel was down.
// Rooms that fail stay pending for the next successful open.
func (c *Channel) drainPending(epoch uint64) {
	for _, room := range c.rooms.Pending() {
		c.mu.Lock()
		if epoch != c.epoch || c.state != StateConnected {
			c.mu.Unlock()
			return
		}
		if !c.rooms.IsPending(room) {
			// unregistered since the snapshot
			c.mu.Unlock()
			continue
		}
		err := c.ensureRegisteredLocked(room)
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn().Err(err).Str("room_id", string(room)).Msg("re-registration failed, kept pending")
		}
	}
	c.metrics.PendingRooms(len(c.rooms.Pending()))
}

func (c *Channel) keepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		c.healthy = false
		return domain.ErrChannelUnavailable
	}
	now := time.Now()
	msg, err := keepAliveEnvelope(c.id, now)
	if err != nil {
		return err
	}
	if err := c.sendLocked(msg); err != nil {
		c.metrics.KeepAliveFailed()
		c.dropConnLocked(err)
		return err
	}
	c.healthy = true
	c.lastPing = now
	return nil
}
