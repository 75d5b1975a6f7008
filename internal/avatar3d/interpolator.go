package avatar3d

import (
	"math"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/viseme"
	"github.com/rs/zerolog"
)

// DefaultLerpRate is the per-second approach rate of morph values toward their targets.
const DefaultLerpRate = 5.0

// FrameClock measures wall-clock time between frames and can be reset so the
// next delta starts from zero.
type FrameClock struct {
	clock   clock.Clock
	last    time.Time
	started bool
}

// NewFrameClock creates a frame clock over c.
func NewFrameClock(c clock.Clock) *FrameClock {
	return &FrameClock{clock: c}
}

// Delta returns seconds since the previous call or Reset. The first call returns 0.
func (f *FrameClock) Delta() float64 {
	now := f.clock.Now()
	if !f.started {
		f.started = true
		f.last = now
		return 0
	}
	d := now.Sub(f.last).Seconds()
	f.last = now
	if d < 0 {
		return 0
	}
	return d
}

// Reset restarts the delta measurement at now.
func (f *FrameClock) Reset() {
	f.last = f.clock.Now()
	f.started = true
}

// Advancer is advanced once per frame, typically the animation mixer.
type Advancer interface {
	Update(dt float64)
}

// Interpolator smooths blend shapes toward the active viseme's targets once per frame.
type Interpolator struct {
	frames  *FrameClock
	current func() viseme.ID
	logger  zerolog.Logger
	metrics *metrics.Metrics

	rate    float64
	meshes  []Mesh
	mixer   Advancer
	state   MorphState
	hidden  bool
	restore bool
}

// NewInterpolator creates an interpolator reading the active viseme through current.
func NewInterpolator(c clock.Clock, current func() viseme.ID, rate float64, m *metrics.Metrics, logger zerolog.Logger) *Interpolator {
	if rate <= 0 {
		rate = DefaultLerpRate
	}
	return &Interpolator{
		frames:  NewFrameClock(c),
		current: current,
		logger:  logger.With().Str("component", "frames").Logger(),
		metrics: m,
		rate:    rate,
		state:   NewMorphState(),
	}
}

// Bind attaches the meshes and mixer of a loaded avatar.
func (ip *Interpolator) Bind(meshes []Mesh, mixer Advancer) {
	ip.meshes = meshes
	ip.mixer = mixer
	ip.logger.Debug().Int("meshes", len(meshes)).Bool("mixer", mixer != nil).Msg("Render target bound")
}

// SetRate changes the approach rate.
func (ip *Interpolator) SetRate(rate float64) {
	if rate > 0 {
		ip.rate = rate
	}
}

// Tick renders one frame and returns its delta in seconds.
func (ip *Interpolator) Tick() float64 {
	dt := ip.frames.Delta()
	ip.metrics.FrameDelta.Observe(dt)

	if ip.mixer != nil {
		ip.mixer.Update(dt)
	}

	if ip.restore {
		ip.restore = false
		ip.applyState()
		ip.metrics.VisibilityRecoveries.Inc()
		return dt
	}

	targets := BlendTargets(ip.current())
	k := math.Min(1, dt*ip.rate)
	for _, name := range trackedShapes {
		v := ip.state[name]
		v += (targets[name] - v) * k
		v = clamp(v, 0, 1)
		ip.state[name] = v
		for _, mesh := range ip.meshes {
			writeInfluence(mesh, name, v)
		}
	}
	return dt
}

// SetVisible records a visibility change of the render surface. Becoming
// visible again resets the frame clock and makes the next frame reapply the
// persisted morph state without interpolation.
func (ip *Interpolator) SetVisible(visible bool) {
	if !visible {
		ip.hidden = true
		return
	}
	if !ip.hidden {
		return
	}
	ip.hidden = false
	ip.frames.Reset()
	ip.restore = true
	ip.logger.Debug().Msg("Surface visible again, restoring morph state")
}

// State returns a copy of the persisted morph state.
func (ip *Interpolator) State() MorphState {
	return ip.state.Clone()
}

func (ip *Interpolator) applyState() {
	for name, v := range ip.state {
		for _, mesh := range ip.meshes {
			writeInfluence(mesh, name, v)
		}
	}
}
