package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RabbyHub/perps-engine/internal/logging"
)

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn manages a single live-feed WebSocket connection with standard
// ping/pong handling and outbound rate limiting.
type Conn struct {
	config  Config
	limiter *RateLimiter
	logger  logging.ApplicationLogger

	conn       *websocket.Conn
	state      ConnectionState
	stateMutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	lastActivity  time.Time
	activityMutex sync.RWMutex

	onConnect    func() error
	onDisconnect func()
	onMessage    func([]byte) error
	onError      func(error)
}

func NewConn(config Config, logger logging.ApplicationLogger) *Conn {
	return &Conn{
		config:  config,
		limiter: NewRateLimiter(config.RateLimitCapacity, config.RateLimitRefill),
		logger:  logger,
		state:   StateDisconnected,
	}
}

// SetCallbacks installs the connection lifecycle hooks. Must be called
// before Connect.
func (c *Conn) SetCallbacks(
	onConnect func() error,
	onDisconnect func(),
	onMessage func([]byte) error,
	onError func(error),
) {
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
	c.onMessage = onMessage
	c.onError = onError
}

func (c *Conn) Connect(ctx context.Context) error {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == StateConnected || c.state == StateConnecting {
		return fmt.Errorf("already connected or connecting")
	}

	c.setState(StateConnecting)
	c.ctx, c.cancel = context.WithCancel(ctx)

	return c.doConnect()
}

func (c *Conn) doConnect() error {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL: %w", err)
	}
	if u.Scheme != "wss" {
		return fmt.Errorf("insecure WebSocket scheme: %s (must be wss)", u.Scheme)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
	}

	connectCtx, cancel := context.WithTimeout(c.ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(connectCtx, u.String(), nil)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		c.updateLastActivity()
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	c.conn = conn
	c.setState(StateConnected)
	c.updateLastActivity()

	go c.readMessages()

	if c.onConnect != nil {
		if err := c.onConnect(); err != nil {
			c.logger.Error("connect callback failed: %v", err)
			return err
		}
	}

	c.logger.Info("live feed connected to %s", c.config.URL)
	return nil
}

func (c *Conn) Disconnect() error {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == StateDisconnected {
		return nil
	}
	c.setState(StateDisconnected)

	if c.cancel != nil {
		c.cancel()
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
	return err
}

// SendJSON writes a JSON message, subject to the outbound rate limit.
func (c *Conn) SendJSON(v interface{}) error {
	if !c.limiter.Allow() {
		return fmt.Errorf("outbound message rate limit exceeded")
	}

	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()

	if c.state != StateConnected || c.conn == nil {
		return fmt.Errorf("live feed not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return c.conn.WriteJSON(v)
}

func (c *Conn) GetState() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

func (c *Conn) IsHealthy() bool {
	if c.GetState() != StateConnected {
		return false
	}

	c.activityMutex.RLock()
	lastActivity := c.lastActivity
	c.activityMutex.RUnlock()

	return time.Since(lastActivity) <= c.config.ReadTimeout
}

func (c *Conn) setState(state ConnectionState) {
	c.state = state
	c.logger.Debug("live feed state changed to: %s", state.String())
}

func (c *Conn) updateLastActivity() {
	c.activityMutex.Lock()
	defer c.activityMutex.Unlock()
	c.lastActivity = time.Now()
}

func (c *Conn) readMessages() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("live feed read panic: %v", r)
			c.handleConnectionError()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			if c.GetState() != StateConnected {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
				c.logger.Error("failed to set read deadline: %v", err)
				c.handleConnectionError()
				return
			}

			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("live feed closed normally")
				} else {
					c.logger.Error("live feed read error: %v", err)
				}
				c.handleConnectionError()
				return
			}

			c.updateLastActivity()

			if c.onMessage != nil {
				if err := c.onMessage(message); err != nil {
					if c.onError != nil {
						c.onError(fmt.Errorf("message processing error: %w", err))
					}
				}
			}
		}
	}
}

func (c *Conn) handleConnectionError() {
	c.stateMutex.Lock()
	c.setState(StateDisconnected)
	c.stateMutex.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
	if c.onError != nil {
		c.onError(fmt.Errorf("live feed connection lost"))
	}
}
