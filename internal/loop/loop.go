// Package loop runs every avatar callback (frames, transport events, timers)
// on one goroutine so the core never needs locks.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("loop closed")

// Loop is a single-goroutine callback queue. It also implements clock.Clock:
// timers armed through it run on the loop goroutine.
type Loop struct {
	clock  clock.Clock
	logger zerolog.Logger
	queue  chan func()

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a loop with a queue of the given depth.
func New(c clock.Clock, depth int, logger zerolog.Logger) *Loop {
	if depth <= 0 {
		depth = 256
	}
	return &Loop{
		clock:  c,
		logger: logger.With().Str("component", "loop").Logger(),
		queue:  make(chan func(), depth),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It reports false when the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

// Close stops Run and rejects further posts.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Err(fmt.Errorf("panic: %v", r)).Msg("Callback panicked")
		}
	}()
	fn()
}

func (l *Loop) Now() time.Time { return l.clock.Now() }

// AfterFunc arms a timer whose callback is posted onto the loop. A timer
// stopped from the loop goroutine never runs, even if its post is already
// queued.
func (l *Loop) AfterFunc(d time.Duration, fn func()) clock.Timer {
	t := &timer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			t.fired.Store(true)
			fn()
		})
	})
	return t
}

type timer struct {
	inner   clock.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *timer) Stop() bool {
	if t.fired.Load() || t.stopped.Swap(true) {
		return false
	}
	t.inner.Stop()
	return true
}
