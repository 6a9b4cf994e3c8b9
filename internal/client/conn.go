// Package client implements the client side of the alert feed: the
// reconnecting websocket connection and the bounded notification store.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stockpilot/internal/models"
)

// State is the connection manager's lifecycle state.
type State int

const (
	// StateDisconnected means no connection and no dial in progress. The
	// manager enters this state permanently once its retry budget is spent.
	StateDisconnected State = iota
	// StateConnecting means a dial or a backoff wait is in progress.
	StateConnecting
	// StateConnected means the handshake succeeded and frames are flowing.
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnConfig holds configuration for the connection manager.
type ConnConfig struct {
	// URL is the websocket alert feed endpoint, e.g. ws://host/ws/alerts.
	URL string
	// MaxRetries caps consecutive failed dials before the manager gives up
	// and surfaces a persistent disconnected state.
	MaxRetries int
	// BaseDelay is the first reconnect delay; doubles per attempt up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the reconnect delay.
	MaxDelay time.Duration
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration
}

// DefaultConnConfig returns the default connection configuration.
func DefaultConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:              url,
		MaxRetries:       5,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Conn maintains one persistent alert-feed connection with automatic
// reconnect. Events published while the connection is down are permanently
// lost to this client; the feed is advisory and there is no replay.
type Conn struct {
	config ConnConfig
	logger zerolog.Logger

	mu    sync.RWMutex
	state State
	ws    *websocket.Conn

	onEvent func(models.AlertEvent)
	onState func(State)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConn creates a connection manager. Call Start to begin connecting.
func NewConn(config ConnConfig, logger zerolog.Logger) *Conn {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	return &Conn{
		config: config,
		logger: logger,
		state:  StateDisconnected,
	}
}

// OnEvent sets the handler invoked for each well-formed alert event.
// Must be set before Start.
func (c *Conn) OnEvent(handler func(models.AlertEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = handler
}

// OnStateChange sets the handler invoked on every state transition.
// Must be set before Start.
func (c *Conn) OnStateChange(handler func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// Start launches the connect/read/reconnect loop. The loop stops when ctx is
// cancelled, Close is called, or the retry budget is exhausted.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

// Close stops the reconnect loop and closes any open connection. It blocks
// until the loop has exited.
func (c *Conn) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether the feed is currently connected. This is the
// boolean consumed by the UI status indicator.
func (c *Conn) Connected() bool {
	return c.State() == StateConnected
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(s)
	}
}

// stableSessionWindow is how long a session must stay connected before it
// resets the retry budget. A connection that drops sooner counts as a failed
// attempt, so a server that accepts the handshake and immediately closes
// cannot keep the budget refilled forever.
const stableSessionWindow = 30 * time.Second

// run is the connection state machine:
// Connecting -> Connected -> Disconnected -> Connecting -> ... until the
// context is cancelled or MaxRetries consecutive attempts fail. Every
// re-dial, whether after a failed handshake or a dropped session, waits out
// the current backoff delay first.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	bo := newBackoff(c.config.BaseDelay, c.config.MaxDelay)
	dialer := &websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}

	for {
		c.setState(StateConnecting)

		ws, _, err := dialer.DialContext(ctx, c.config.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if bo.attempts() >= c.config.MaxRetries-1 {
				c.logger.Error().
					Err(err).
					Int("attempts", bo.attempts()+1).
					Msg("Alert feed unreachable, giving up")
				return
			}
			if !c.wait(ctx, bo.next(), err) {
				return
			}
			continue
		}

		connectedAt := time.Now()
		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info().Str("url", c.config.URL).Msg("Alert feed connected")

		c.readLoop(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}

		// Only a session that stayed up resets the retry budget; a session
		// that dropped right away spends an attempt like a failed dial.
		if time.Since(connectedAt) >= stableSessionWindow {
			bo.reset()
			if !c.wait(ctx, bo.base, nil) {
				return
			}
			continue
		}
		if bo.attempts() >= c.config.MaxRetries-1 {
			c.logger.Error().
				Int("attempts", bo.attempts()+1).
				Msg("Alert feed keeps dropping, giving up")
			return
		}
		if !c.wait(ctx, bo.next(), nil) {
			return
		}
	}
}

// wait sleeps out one backoff delay. Returns false if ctx was cancelled.
func (c *Conn) wait(ctx context.Context, delay time.Duration, cause error) bool {
	c.logger.Warn().
		Err(cause).
		Dur("retry_in", delay).
		Msg("Alert feed disconnected, reconnecting")

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// readLoop reads frames until the connection fails or ctx is cancelled.
// Malformed frames are dropped with a warning; they never tear the
// connection down or reach the notification store.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg models.AlertMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping undecodable alert frame")
			continue
		}

		event, err := msg.Event()
		if err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("Dropping malformed alert event")
			continue
		}

		c.mu.RLock()
		handler := c.onEvent
		c.mu.RUnlock()
		if handler != nil {
			handler(event)
		}
	}
}
