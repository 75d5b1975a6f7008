package avatar

import (
	"context"
	"time"
)

// StallFactor is how many frame intervals may pass between two ticks before
// the gap is treated as the surface having been hidden (suspended process,
// sleeping machine).
const StallFactor = 30

// Stalled reports whether a gap between frames means the surface was away.
func Stalled(gap, interval time.Duration) bool {
	return interval > 0 && gap > interval*StallFactor
}

// Drive posts one Frame per tick at fps until ctx is done. A stalled tick is
// rendered as a visibility recovery. Drive blocks; run it on its own goroutine.
func Drive(ctx context.Context, r *Runtime, post func(fn func()) bool, fps int) {
	if fps <= 0 {
		fps = 60
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stalled := Stalled(now.Sub(last), interval)
			last = now
			post(func() {
				if stalled {
					r.SetVisible(false)
					r.SetVisible(true)
				}
				r.Frame()
			})
		}
	}
}
