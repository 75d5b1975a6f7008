package mixer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moveClip(name, bone string, duration float32, to float32) *Clip {
	return NewClip(name, []Track{{
		Node:   bone,
		Path:   Translation,
		Times:  []float32{0, duration},
		Values: []float32{0, 0, 0, to, 0, 0},
	}})
}

func TestClipDurationAndBones(t *testing.T) {
	c := NewClip("wave", []Track{
		{Node: "Hand", Path: Translation, Times: []float32{0, 1.5}, Values: make([]float32, 6)},
		{Node: "Arm", Path: Rotation, Times: []float32{0, 2}, Values: make([]float32, 8)},
	})
	assert.Equal(t, 2.0, c.Duration)
	assert.Equal(t, []string{"Arm", "Hand"}, c.Bones())
}

func TestPlayOnceFinishesAndClamps(t *testing.T) {
	m := New(moveClip("nod", "Head", 1, 2))
	var finished []string
	m.OnFinished(func(clip string) { finished = append(finished, clip) })

	a, ok := m.Action("nod")
	require.True(t, ok)
	a.SetLoopOnce()
	a.SetClampWhenFinished(true)
	a.Play()

	m.Update(0.5)
	assert.InDelta(t, 1.0, m.Pose()["Head"].Translation.X(), 1e-5)
	assert.Empty(t, finished)

	m.Update(0.6)
	assert.Equal(t, []string{"nod"}, finished)
	assert.Equal(t, 1.0, a.Time())
	assert.True(t, a.IsRunning(), "clamped action keeps its last frame")
	assert.InDelta(t, 2.0, m.Pose()["Head"].Translation.X(), 1e-5)

	m.Update(1)
	assert.Len(t, finished, 1, "finished fires once")
}

func TestPlayOnceWithoutClampStops(t *testing.T) {
	m := New(moveClip("nod", "Head", 1, 2))
	a, _ := m.Action("nod")
	a.SetLoopOnce()
	a.Play()

	m.Update(2)
	assert.False(t, a.IsRunning())
	assert.Empty(t, m.Running())
}

func TestLoopingWrapsTime(t *testing.T) {
	m := New(moveClip("sway", "Hips", 1, 1))
	a, _ := m.Action("sway")
	a.Play()
	m.Update(2.25)
	assert.InDelta(t, 0.25, a.Time(), 1e-9)
}

func TestCrossFadeBlendsWeights(t *testing.T) {
	m := New(moveClip("a", "Head", 10, 0), NewClip("b", []Track{{
		Node: "Head", Path: Translation, Times: []float32{0, 10}, Values: []float32{4, 0, 0, 4, 0, 0},
	}}))
	a, _ := m.Action("a")
	b, _ := m.Action("b")
	a.Play()
	m.Update(0)

	b.Reset()
	b.Play()
	a.CrossFadeTo(b, 0.5, false)

	m.Update(0.25)
	assert.InDelta(t, 0.5, a.EffectiveWeight(), 1e-9)
	assert.InDelta(t, 0.5, b.EffectiveWeight(), 1e-9)
	assert.InDelta(t, 2.0, m.Pose()["Head"].Translation.X(), 1e-5)

	m.Update(0.25)
	assert.False(t, a.IsRunning(), "faded-out action stops")
	assert.Equal(t, 1.0, b.EffectiveWeight())
	assert.Equal(t, []string{"b"}, m.Running())
}

func TestCrossFadeWarpBlendsTimeScale(t *testing.T) {
	m := New(moveClip("short", "Head", 1, 0), moveClip("long", "Head", 4, 0))
	s, _ := m.Action("short")
	l, _ := m.Action("long")
	s.Play()
	l.Play()
	s.CrossFadeTo(l, 1, true)

	assert.InDelta(t, 1.0, s.EffectiveTimeScale(), 1e-9)
	assert.InDelta(t, 4.0, l.EffectiveTimeScale(), 1e-9)

	m.Update(1)
	assert.InDelta(t, 1.0, l.EffectiveTimeScale(), 1e-9)
}

func TestRotationSlerp(t *testing.T) {
	half := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	c := NewClip("turn", []Track{{
		Node:   "Neck",
		Path:   Rotation,
		Times:  []float32{0, 1},
		Values: []float32{0, 0, 0, 1, half.V[0], half.V[1], half.V[2], half.W},
	}})
	m := New(c)
	a, _ := m.Action("turn")
	a.Play()
	m.Update(0.5)

	want := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	got := m.Pose()["Neck"].Rotation
	assert.InDelta(t, 1.0, float64(absf(got.Dot(want))), 1e-4)
}

func TestUnsubscribeFinished(t *testing.T) {
	m := New(moveClip("nod", "Head", 0.1, 1))
	calls := 0
	unsubscribe := m.OnFinished(func(string) { calls++ })
	unsubscribe()

	a, _ := m.Action("nod")
	a.SetLoopOnce()
	a.Play()
	m.Update(1)
	assert.Zero(t, calls)
}

func TestUnknownClip(t *testing.T) {
	m := New()
	_, ok := m.ClipAction("missing")
	assert.False(t, ok)
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
