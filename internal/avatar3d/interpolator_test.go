package avatar3d

import (
	"testing"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/viseme"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMixer struct {
	deltas []float64
}

func (m *countingMixer) Update(dt float64) { m.deltas = append(m.deltas, dt) }

func newTestInterpolator(current *viseme.ID) (*Interpolator, *clock.Fake, *MorphMesh, *countingMixer) {
	c := clock.NewFake(time.Unix(0, 0))
	ip := NewInterpolator(c, func() viseme.ID { return *current }, DefaultLerpRate, metrics.Discard(), zerolog.Nop())
	mesh := NewMorphMesh("head", TrackedShapes())
	mixer := &countingMixer{}
	ip.Bind([]Mesh{mesh}, mixer)
	return ip, c, mesh, mixer
}

func TestBlendTargets(t *testing.T) {
	targets := BlendTargets(2)
	assert.Equal(t, 1.0, targets["viseme_aa"])
	assert.Equal(t, MouthOpenBoost, targets[MouthOpen])
	assert.Zero(t, targets["viseme_PP"])
	assert.Len(t, targets, len(TrackedShapes()))

	closed := BlendTargets(21)
	assert.Equal(t, 1.0, closed["viseme_PP"])
	assert.Zero(t, closed[MouthOpen])
}

func TestInterpolator_LerpsTowardTarget(t *testing.T) {
	id := viseme.ID(21)
	ip, c, mesh, mixer := newTestInterpolator(&id)

	assert.Zero(t, ip.Tick(), "first frame has no delta")

	c.Advance(100 * time.Millisecond)
	dt := ip.Tick()
	assert.InDelta(t, 0.1, dt, 1e-9)
	// k = min(1, 0.1*5) = 0.5
	assert.InDelta(t, 0.5, mesh.Influence("viseme_PP"), 1e-9)

	c.Advance(100 * time.Millisecond)
	ip.Tick()
	assert.InDelta(t, 0.75, mesh.Influence("viseme_PP"), 1e-9)
	assert.Equal(t, []float64{0, 0.1, 0.1}, roundAll(mixer.deltas))
}

func TestInterpolator_LargeDeltaClampsStep(t *testing.T) {
	id := viseme.ID(1)
	ip, c, mesh, _ := newTestInterpolator(&id)
	ip.Tick()

	c.Advance(time.Second)
	ip.Tick()
	assert.Equal(t, 1.0, mesh.Influence("viseme_aa"))
	assert.Equal(t, MouthOpenBoost, mesh.Influence(MouthOpen))
}

func TestInterpolator_PreviousVisemeDecays(t *testing.T) {
	id := viseme.ID(21)
	ip, c, mesh, _ := newTestInterpolator(&id)
	ip.Tick()
	c.Advance(time.Second)
	ip.Tick()
	require.Equal(t, 1.0, mesh.Influence("viseme_PP"))

	id = 15
	c.Advance(100 * time.Millisecond)
	ip.Tick()
	assert.InDelta(t, 0.5, mesh.Influence("viseme_PP"), 1e-9)
	assert.InDelta(t, 0.5, mesh.Influence("viseme_SS"), 1e-9)
	assert.Equal(t, ip.State()["viseme_SS"], mesh.Influence("viseme_SS"))
}

func TestInterpolator_VisibilityRecoveryReappliesState(t *testing.T) {
	id := viseme.ID(6)
	ip, c, mesh, mixer := newTestInterpolator(&id)
	ip.Tick()
	c.Advance(50 * time.Millisecond)
	ip.Tick()
	before := ip.State()

	ip.SetVisible(false)
	id = 21
	c.Advance(10 * time.Second)

	// Something else scribbles on the mesh while hidden.
	for i := range mesh.Influences {
		mesh.Influences[i] = 0.9
	}

	ip.SetVisible(true)
	dt := ip.Tick()

	assert.Zero(t, dt, "clock reset must swallow the hidden interval")
	assert.Zero(t, mixer.deltas[len(mixer.deltas)-1])
	for name, v := range before {
		assert.Equal(t, v, mesh.Influence(name), name)
	}
	assert.Equal(t, before, ip.State())

	// Interpolation resumes on the following frame.
	c.Advance(100 * time.Millisecond)
	ip.Tick()
	assert.Greater(t, mesh.Influence("viseme_PP"), before["viseme_PP"])
}

func TestInterpolator_VisibleWithoutHideIsNoop(t *testing.T) {
	id := viseme.ID(0)
	ip, c, _, _ := newTestInterpolator(&id)
	ip.Tick()
	c.Advance(100 * time.Millisecond)

	ip.SetVisible(true)
	assert.InDelta(t, 0.1, ip.Tick(), 1e-9)
}

func TestInterpolator_UnknownShapesAreSkipped(t *testing.T) {
	id := viseme.ID(1)
	c := clock.NewFake(time.Unix(0, 0))
	ip := NewInterpolator(c, func() viseme.ID { return id }, 0, metrics.Discard(), zerolog.Nop())
	partial := NewMorphMesh("teeth", []string{MouthOpen})
	ip.Bind([]Mesh{partial}, nil)

	ip.Tick()
	c.Advance(time.Second)
	ip.Tick()
	assert.Equal(t, MouthOpenBoost, partial.Influence(MouthOpen))
	assert.Len(t, partial.Influences, 1)
}

func roundAll(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(int(v*1000+0.5)) / 1000
	}
	return out
}
