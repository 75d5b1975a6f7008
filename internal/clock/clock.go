// Package clock abstracts wall-clock time and one-shot timers so that every
// scheduled callback in the avatar core can be driven by a deterministic clock
// in tests.
package clock

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// System is the real clock backed by package time.
type System struct{}

// NewSystem returns the process clock.
func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Since returns seconds elapsed on c since t.
func Since(c Clock, t time.Time) float64 {
	return c.Now().Sub(t).Seconds()
}

// Seconds converts a float number of seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
