// Package stream maintains a persistent connection to the dashboard's
// live push endpoint, reconnecting with capped exponential backoff and
// forwarding decoded record frames to a caller-supplied handler while
// live mode is enabled.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Backoff bounds: the Nth reconnection waits min(1s·2^(N-1), 30s).
const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// DefaultMaxAttempts is the reconnection budget before the client
// gives up until the next explicit Connect.
const DefaultMaxAttempts = 8

// Handler receives each decoded record frame while live mode is on.
type Handler func(Frame)

// Client is a resilient stream client. The zero state is disconnected;
// nothing happens until Connect.
type Client struct {
	endpoint    string
	dialer      Dialer
	clk         clock.Clock
	handler     Handler
	maxAttempts int

	mu       sync.Mutex
	state    State
	attempts int
	live     bool
	conn     Conn
	stop     chan struct{}
	session  uint64
}

// Option configures a Client.
type Option func(*Client)

// WithDialer injects the transport used to open connections.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithClock injects the clock used for backoff timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clk = clk }
}

// WithMaxAttempts overrides the reconnection budget.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithLiveMode sets the initial live-mode flag. Default on.
func WithLiveMode(on bool) Option {
	return func(c *Client) { c.live = on }
}

// New creates a stream client for the given websocket endpoint.
func New(endpoint string, handler Handler, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		dialer:      defaultDialer{},
		clk:         clock.WallClock,
		handler:     handler,
		maxAttempts: DefaultMaxAttempts,
		live:        true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnection attempt counter. It resets
// to 0 on a successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LiveMode reports whether record frames are forwarded to the handler.
func (c *Client) LiveMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// ToggleLiveMode flips forwarding without touching the connection and
// returns the new flag. Frames received while live mode is off are
// dropped, never replayed.
func (c *Client) ToggleLiveMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = !c.live
	return c.live
}

// SetLiveMode sets the forwarding flag directly.
func (c *Client) SetLiveMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = on
}

// Connect opens the connection. A no-op unless currently disconnected.
// An explicit Connect restarts a client that exhausted its
// reconnection budget.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.session++
	c.attempts = 0
	c.state = Connecting
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	session := c.session
	c.mu.Unlock()

	go c.dial(ctx, session)
}

// Disconnect closes the connection and synchronously cancels any
// pending reconnection. Terminal until the next explicit Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.session++
	c.state = Disconnected
	conn := c.conn
	c.conn = nil
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) dial(ctx context.Context, session uint64) {
	conn, err := c.dialer.Dial(ctx, c.endpoint)

	c.mu.Lock()
	if session != c.session {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = Disconnected
		slog.Debug("stream dial failed",
			slog.String("endpoint", c.endpoint),
			slog.String("error", err.Error()),
		)
		c.scheduleReconnectLocked(ctx, session)
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	slog.Info("stream connected", slog.String("endpoint", c.endpoint))
	go c.readLoop(ctx, session, conn)
}

func (c *Client) readLoop(ctx context.Context, session uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if session != c.session {
				c.mu.Unlock()
				return
			}
			c.state = Disconnected
			c.conn = nil
			slog.Debug("stream closed",
				slog.String("endpoint", c.endpoint),
				slog.String("error", err.Error()),
			)
			c.scheduleReconnectLocked(ctx, session)
			c.mu.Unlock()
			return
		}
		c.handleFrame(session, data)
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Beyond the attempt budget the client stays disconnected, silently,
// until an explicit Connect.
func (c *Client) scheduleReconnectLocked(ctx context.Context, session uint64) {
	if c.attempts >= c.maxAttempts {
		slog.Warn("stream reconnection budget exhausted",
			slog.String("endpoint", c.endpoint),
			slog.Int("attempts", c.attempts),
		)
		return
	}
	delay := backoffDelay(c.attempts)
	c.attempts++
	stop := c.stop

	slog.Debug("stream reconnect scheduled",
		slog.String("endpoint", c.endpoint),
		slog.Duration("delay", delay),
		slog.Int("attempt", c.attempts),
	)

	timer := c.clk.NewTimer(delay)
	go func() {
		select {
		case <-stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		case <-timer.Chan():
			c.mu.Lock()
			if session != c.session {
				c.mu.Unlock()
				return
			}
			c.state = Connecting
			c.mu.Unlock()
			c.dial(ctx, session)
		}
	}()
}

// backoffDelay returns the wait before reconnection attempt n (0-based).
func backoffDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return backoffMax
	}
	delay := backoffBase << attempt
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}

func (c *Client) handleFrame(session uint64, data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		slog.Debug("dropping malformed stream frame", slog.String("error", err.Error()))
		return
	}

	switch frame.Type {
	case FrameConnected:
		slog.Debug("stream acknowledged", slog.String("message", frame.Message))
	case FrameLog:
		c.mu.Lock()
		// A frame read just before Disconnect or a session restart must
		// not outlive its connection.
		current := session == c.session
		live, handler := c.live, c.handler
		c.mu.Unlock()
		if current && live && handler != nil {
			handler(frame)
		}
	}
}
