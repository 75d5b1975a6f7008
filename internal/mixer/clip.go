// Package mixer is a headless skeletal animation mixer: it plays named clips
// as actions, fades and warps them, reports finished play-once clips, and
// samples a blended pose each frame.
package mixer

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Path is the node property a track animates.
type Path int

const (
	Translation Path = iota
	Rotation
	Scale
)

func (p Path) String() string {
	switch p {
	case Translation:
		return "translation"
	case Rotation:
		return "rotation"
	case Scale:
		return "scale"
	}
	return "unknown"
}

// Components returns the number of floats per keyframe value.
func (p Path) Components() int {
	if p == Rotation {
		return 4
	}
	return 3
}

// Track is a linear keyframe curve for one property of one bone.
type Track struct {
	Node   string
	Path   Path
	Times  []float32
	Values []float32
}

// Valid reports whether the keyframe arrays agree.
func (t *Track) Valid() bool {
	return len(t.Times) > 0 && len(t.Values) == len(t.Times)*t.Path.Components()
}

// Clip is a named set of tracks.
type Clip struct {
	Name     string
	Duration float64
	Tracks   []Track
}

// NewClip builds a clip whose duration is the last keyframe time.
func NewClip(name string, tracks []Track) *Clip {
	c := &Clip{Name: name, Tracks: tracks}
	for _, t := range tracks {
		if n := len(t.Times); n > 0 && float64(t.Times[n-1]) > c.Duration {
			c.Duration = float64(t.Times[n-1])
		}
	}
	return c
}

// Bones returns the sorted set of bones the clip animates.
func (c *Clip) Bones() []string {
	seen := make(map[string]bool)
	for _, t := range c.Tracks {
		seen[t.Node] = true
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Transform is a bone's local transform.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// Rest is the identity transform.
func Rest() Transform {
	return Transform{Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}}
}

// Pose maps bone names to their blended transform.
type Pose map[string]Transform

// sampleVec3 evaluates a translation or scale track at t.
func (t *Track) sampleVec3(at float32) mgl32.Vec3 {
	i, f := t.locate(at)
	a := mgl32.Vec3{t.Values[i*3], t.Values[i*3+1], t.Values[i*3+2]}
	if f == 0 || i+1 >= len(t.Times) {
		return a
	}
	j := i + 1
	b := mgl32.Vec3{t.Values[j*3], t.Values[j*3+1], t.Values[j*3+2]}
	return a.Add(b.Sub(a).Mul(f))
}

// sampleQuat evaluates a rotation track at t. Values are glTF-ordered (x, y, z, w).
func (t *Track) sampleQuat(at float32) mgl32.Quat {
	i, f := t.locate(at)
	a := quatAt(t.Values, i)
	if f == 0 || i+1 >= len(t.Times) {
		return a
	}
	return mgl32.QuatSlerp(a, quatAt(t.Values, i+1), f)
}

func quatAt(values []float32, i int) mgl32.Quat {
	return mgl32.Quat{
		V: mgl32.Vec3{values[i*4], values[i*4+1], values[i*4+2]},
		W: values[i*4+3],
	}.Normalize()
}

// locate returns the keyframe at or before at and the fraction toward the next.
func (t *Track) locate(at float32) (int, float32) {
	n := len(t.Times)
	if at <= t.Times[0] {
		return 0, 0
	}
	if at >= t.Times[n-1] {
		return n - 1, 0
	}
	i := sort.Search(n, func(k int) bool { return t.Times[k] > at }) - 1
	span := t.Times[i+1] - t.Times[i]
	if span <= 0 {
		return i, 0
	}
	return i, (at - t.Times[i]) / span
}
