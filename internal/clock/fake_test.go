package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var got []string

	c.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	c.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	c.AfterFunc(200*time.Millisecond, func() { got = append(got, "b") })

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFakeStopPreventsFiring(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeRearmWithinWindow(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	ticks := 0
	var arm func()
	arm = func() {
		c.AfterFunc(100*time.Millisecond, func() {
			ticks++
			arm()
		})
	}
	arm()

	c.Advance(550 * time.Millisecond)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, time.Unix(0, 0).Add(550*time.Millisecond), c.Now())
}
