package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/session"
)

// Config configures a Client.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Client is a WebSocket transport. Connect dials and reports initializing
// until the server sends bot-ready. It never reconnects on its own.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   session.State
	cancel  context.CancelFunc
	writeMu sync.Mutex

	handlersMu    sync.RWMutex
	nextHandler   uint64
	stateHandlers map[uint64]func(session.State)
	eventHandlers map[uint64]func(bus.Event)
}

var _ session.Transport = (*Client)(nil)

// NewClient creates a new WebSocket transport client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:        logger.With().Str("component", "transport").Logger(),
		state:         session.Disconnected,
		stateHandlers: make(map[uint64]func(session.State)),
		eventHandlers: make(map[uint64]func(bus.Event)),
	}
}

// OnState registers a lifecycle handler. Handlers run on the client's
// goroutines; the returned func removes the handler.
func (c *Client) OnState(fn func(session.State)) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandler++
	id := c.nextHandler
	c.stateHandlers[id] = fn
	return func() {
		c.handlersMu.Lock()
		delete(c.stateHandlers, id)
		c.handlersMu.Unlock()
	}
}

// OnEvent registers an avatar event handler.
func (c *Client) OnEvent(fn func(bus.Event)) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandler++
	id := c.nextHandler
	c.eventHandlers[id] = fn
	return func() {
		c.handlersMu.Lock()
		delete(c.eventHandlers, id)
		c.handlersMu.Unlock()
	}
}

// State returns the current lifecycle state.
func (c *Client) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server and announces the client. It returns once the
// socket is open; bot-ready arrives later on the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	c.setState(session.Connecting)
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connecting to conversation server")

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.setState(session.Disconnected)
		return fmt.Errorf("dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(session.Initializing)

	if err := c.Send(Envelope{Type: TypeClientReady}); err != nil {
		c.drop(conn)
		return fmt.Errorf("announce client: %w", err)
	}

	go c.readLoop(readCtx, conn)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(readCtx, conn)
	}
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return session.ErrNotConnected
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()

	c.drop(conn)
	return nil
}

// Send writes an envelope.
func (c *Client) Send(env Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return session.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}

// drop forgets conn and reports disconnected, once per connection.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	conn.Close()
	c.setState(session.Disconnected)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.drop(conn)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Connection lost")
			}
			return
		}
		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env Envelope) {
	switch env.Type {
	case TypeBotReady:
		c.logger.Info().Msg("Bot ready")
		c.setState(session.Connected)
		return
	case TypeError:
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Payload, &msg)
		c.logger.Warn().Str("message", msg.Message).Msg("Server error")
		return
	}

	ev, ok, err := Decode(env)
	if err != nil {
		c.logger.Warn().Err(err).Str("type", env.Type).Msg("Failed to decode envelope")
		return
	}
	if !ok {
		c.logger.Debug().Str("type", env.Type).Msg("Unhandled envelope type")
		return
	}

	c.handlersMu.RLock()
	handlers := make([]func(bus.Event), 0, len(c.eventHandlers))
	for _, h := range c.eventHandlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (c *Client) setState(s session.State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.handlersMu.RLock()
	handlers := make([]func(session.State), 0, len(c.stateHandlers))
	for _, h := range c.stateHandlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}
