package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsPostedCallbacksInOrder(t *testing.T) {
	l := New(clock.NewSystem(), 16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, l.Post(func() { got <- i }))
	}
	for want := 0; want < 3; want++ {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatal("callback did not run")
		}
	}
}

func TestLoopRecoversFromPanics(t *testing.T) {
	l := New(clock.NewSystem(), 16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })
	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop died after panic")
	}
}

func TestLoopTimerStoppedBeforeRunNeverFires(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	l := New(fake, 16, zerolog.Nop())

	var fired atomic.Bool
	tm := l.AfterFunc(time.Second, func() { fired.Store(true) })

	// Timer expires and posts, but the post has not been drained yet.
	fake.Advance(2 * time.Second)
	assert.True(t, tm.Stop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	done := make(chan struct{})
	l.Post(func() { close(done) })
	<-done
	assert.False(t, fired.Load())
}

func TestLoopPostAfterClose(t *testing.T) {
	l := New(clock.NewSystem(), 1, zerolog.Nop())
	l.Close()
	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Run(context.Background()), ErrClosed)
}
