package mixer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/talkinghead/internal/animation"
)

// Mixer plays clip actions and blends them into a Pose.
type Mixer struct {
	clips    map[string]*Clip
	actions  map[string]*Action
	active   []*Action
	pose     Pose
	nextID   int
	finished map[int]func(string)
}

var _ animation.Mixer = (*Mixer)(nil)

// New creates a mixer with the given clips.
func New(clips ...*Clip) *Mixer {
	m := &Mixer{
		clips:    make(map[string]*Clip),
		actions:  make(map[string]*Action),
		pose:     make(Pose),
		finished: make(map[int]func(string)),
	}
	for _, c := range clips {
		m.AddClip(c)
	}
	return m
}

// AddClip registers c, replacing any clip of the same name.
func (m *Mixer) AddClip(c *Clip) {
	if old, ok := m.actions[c.Name]; ok {
		old.Stop()
		delete(m.actions, c.Name)
	}
	m.clips[c.Name] = c
}

// Clips returns the registered clip names.
func (m *Mixer) Clips() []string {
	out := make([]string, 0, len(m.clips))
	for name := range m.clips {
		out = append(out, name)
	}
	return out
}

// ClipAction returns the single action for clip, creating it on first use.
func (m *Mixer) ClipAction(clip string) (animation.Action, bool) {
	a, ok := m.action(clip)
	if !ok {
		return nil, false
	}
	return a, true
}

// Action is ClipAction returning the concrete type.
func (m *Mixer) Action(clip string) (*Action, bool) {
	return m.action(clip)
}

func (m *Mixer) action(clip string) (*Action, bool) {
	if a, ok := m.actions[clip]; ok {
		return a, true
	}
	c, ok := m.clips[clip]
	if !ok {
		return nil, false
	}
	a := &Action{mixer: m, clip: c, timeScale: 1, weight: 1}
	m.actions[clip] = a
	return a, true
}

// OnFinished registers fn for finished notifications.
func (m *Mixer) OnFinished(fn func(clip string)) func() {
	id := m.nextID
	m.nextID++
	m.finished[id] = fn
	return func() { delete(m.finished, id) }
}

// Running returns the names of running actions.
func (m *Mixer) Running() []string {
	out := make([]string, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a.clip.Name)
	}
	return out
}

// Pose returns the pose sampled by the last Update.
func (m *Mixer) Pose() Pose {
	return m.pose
}

// Update advances every running action by dt seconds, samples the blended
// pose, then delivers finished notifications.
func (m *Mixer) Update(dt float64) {
	var done []string
	for _, a := range append([]*Action(nil), m.active...) {
		if a.advance(dt) {
			done = append(done, a.clip.Name)
		}
	}
	m.sample()

	for _, clip := range done {
		for _, fn := range m.finishedHandlers() {
			fn(clip)
		}
	}
}

func (m *Mixer) finishedHandlers() []func(string) {
	out := make([]func(string), 0, len(m.finished))
	for i := 0; i < m.nextID; i++ {
		if fn, ok := m.finished[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (m *Mixer) activate(a *Action) {
	for _, other := range m.active {
		if other == a {
			return
		}
	}
	m.active = append(m.active, a)
}

func (m *Mixer) deactivate(a *Action) {
	for i, other := range m.active {
		if other == a {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}

type accum struct {
	translation mgl32.Vec3
	scale       mgl32.Vec3
	rotation    mgl32.Quat
	tw, sw, rw  float32
}

// sample blends every running action's tracks. Bones with total weight below
// one are completed with the rest transform.
func (m *Mixer) sample() {
	acc := make(map[string]*accum)
	for _, a := range m.active {
		w := float32(a.EffectiveWeight())
		if w <= 0 {
			continue
		}
		at := float32(a.time)
		for i := range a.clip.Tracks {
			t := &a.clip.Tracks[i]
			if !t.Valid() {
				continue
			}
			b := acc[t.Node]
			if b == nil {
				b = &accum{}
				acc[t.Node] = b
			}
			switch t.Path {
			case Translation:
				b.translation = b.translation.Add(t.sampleVec3(at).Mul(w))
				b.tw += w
			case Scale:
				b.scale = b.scale.Add(t.sampleVec3(at).Mul(w))
				b.sw += w
			case Rotation:
				q := t.sampleQuat(at)
				if b.rw > 0 && b.rotation.Dot(q) < 0 {
					q = q.Scale(-1)
				}
				b.rotation = b.rotation.Add(q.Scale(w))
				b.rw += w
			}
		}
	}

	pose := make(Pose, len(acc))
	rest := Rest()
	for bone, b := range acc {
		tr := rest
		if b.tw > 0 {
			tr.Translation = complete(b.translation, b.tw, rest.Translation)
		}
		if b.sw > 0 {
			tr.Scale = complete(b.scale, b.sw, rest.Scale)
		}
		if b.rw > 0 {
			q := b.rotation
			if b.rw < 1 {
				q = q.Add(rest.Rotation.Scale(1 - b.rw))
			}
			tr.Rotation = q.Normalize()
		}
		pose[bone] = tr
	}
	m.pose = pose
}

func complete(sum mgl32.Vec3, weight float32, rest mgl32.Vec3) mgl32.Vec3 {
	if weight >= 1 {
		return sum.Mul(1 / weight)
	}
	return sum.Add(rest.Mul(1 - weight))
}
