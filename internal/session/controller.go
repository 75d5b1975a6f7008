package session

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/rs/zerolog"
)

// Options configures a Controller.
type Options struct {
	WatchdogWindow time.Duration
	MaxRecoveries  int
	ConnectTimeout time.Duration
	// OnExhausted is called on the loop when the watchdog finds the
	// transport stuck with no recoveries left.
	OnExhausted func(err error)
	// Spawn runs blocking transport calls. Defaults to a new goroutine.
	Spawn func(fn func())
}

// Controller implements connect-once-when-ready and the stuck-state
// watchdog. All methods except the spawned connect run on the loop.
type Controller struct {
	clock     clock.Clock
	post      func(func()) bool
	spawn     func(func())
	transport Transport
	opts      Options
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	session Session
	mounted bool

	connecting    bool
	cancelConnect context.CancelFunc
	watchdog      clock.Timer

	// gen increases on every mount and unmount so that results of a
	// connect started by an earlier mount are dropped.
	gen uint64
}

// NewController creates a controller. post must enqueue onto the loop that
// calls the controller's methods.
func NewController(c clock.Clock, post func(func()) bool, t Transport, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Controller {
	if opts.WatchdogWindow <= 0 {
		opts.WatchdogWindow = DefaultWatchdogWindow
	}
	if opts.MaxRecoveries <= 0 {
		opts.MaxRecoveries = DefaultMaxRecoveries
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Spawn == nil {
		opts.Spawn = func(fn func()) { go fn() }
	}
	return &Controller{
		clock:     c,
		post:      post,
		spawn:     opts.Spawn,
		transport: t,
		opts:      opts,
		metrics:   m,
		logger:    logger.With().Str("component", "session").Logger(),
		session:   Session{State: Disconnected},
	}
}

// Mount starts a new session on a ready surface and connects if the
// transport is disconnected.
func (c *Controller) Mount() {
	if c.mounted {
		return
	}
	c.gen++
	c.mounted = true
	c.session = Session{ID: newSessionID(), State: c.session.State}
	c.logger.Info().Str("session_id", c.session.ID).Msg("Session mounted")
	c.maybeConnect()
}

// Unmount tears the session down: the watchdog is cancelled, an in-flight
// connect is abandoned and the transport is disconnected.
func (c *Controller) Unmount() {
	if !c.mounted {
		return
	}
	c.gen++
	c.mounted = false
	c.stopWatchdog()
	if c.cancelConnect != nil {
		c.cancelConnect()
		c.cancelConnect = nil
	}
	c.connecting = false
	if c.session.State != Disconnected {
		c.disconnect()
	}
	c.logger.Info().Str("session_id", c.session.ID).Msg("Session unmounted")
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	return c.session
}

// HandleState records a transport state change.
func (c *Controller) HandleState(s State) {
	prev := c.session.State
	c.session.State = s
	c.metrics.SetConnectionState(string(s), States)
	if prev != s {
		c.logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("Transport state changed")
	}

	if s == Initializing {
		c.armWatchdog()
	} else {
		c.stopWatchdog()
	}

	if s == Disconnected {
		c.maybeConnect()
	}
}

func (c *Controller) maybeConnect() {
	if !c.mounted || c.connecting || c.session.ConnectedOnce || c.session.State != Disconnected {
		return
	}
	c.connecting = true
	c.metrics.ConnectAttempts.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	c.cancelConnect = cancel
	gen := c.gen
	c.logger.Info().Str("session_id", c.session.ID).Msg("Connecting transport")

	c.spawn(func() {
		err := c.transport.Connect(ctx)
		cancel()
		c.post(func() { c.connectDone(gen, err) })
	})
}

func (c *Controller) connectDone(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.connecting = false
	c.cancelConnect = nil
	if err != nil {
		c.metrics.ConnectFailures.Inc()
		c.logger.Error().Err(err).Str("session_id", c.session.ID).Msg("Transport connect failed")
		c.session.State = Disconnected
		c.metrics.SetConnectionState(string(Disconnected), States)
		return
	}
	c.session.ConnectedOnce = true
	c.logger.Info().Str("session_id", c.session.ID).Msg("Transport connected")
}

func (c *Controller) armWatchdog() {
	if !c.mounted || c.watchdog != nil || c.session.Exhausted {
		return
	}
	c.watchdog = c.clock.AfterFunc(c.opts.WatchdogWindow, c.watchdogFired)
}

func (c *Controller) stopWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Controller) watchdogFired() {
	if c.watchdog == nil {
		return
	}
	c.watchdog = nil
	if !c.mounted || c.session.State != Initializing {
		return
	}
	c.session.State = StuckInitializing
	c.metrics.SetConnectionState(string(StuckInitializing), States)

	if c.session.Retries >= c.opts.MaxRecoveries {
		c.session.Exhausted = true
		c.metrics.WatchdogExhausted.Inc()
		err := fmt.Errorf("session %s: %w after %d retries", c.session.ID, ErrRecoveryExhausted, c.session.Retries)
		c.logger.Error().Err(err).Msg("Transport stuck, giving up")
		if c.opts.OnExhausted != nil {
			c.opts.OnExhausted(err)
		}
		return
	}

	c.session.Retries++
	c.session.ConnectedOnce = false
	if c.connecting {
		c.gen++
		c.cancelConnect()
		c.cancelConnect = nil
		c.connecting = false
	}
	c.metrics.WatchdogRecoveries.Inc()
	c.logger.Warn().
		Str("session_id", c.session.ID).
		Int("retry", c.session.Retries).
		Dur("window", c.opts.WatchdogWindow).
		Msg("Transport stuck initializing, forcing reconnect")
	c.disconnect()
}

func (c *Controller) disconnect() {
	t := c.transport
	id := c.session.ID
	c.spawn(func() {
		if err := t.Disconnect(); err != nil {
			c.logger.Warn().Err(err).Str("session_id", id).Msg("Transport disconnect failed")
		}
	})
}
