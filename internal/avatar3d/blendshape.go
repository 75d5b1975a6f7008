// Package avatar3d turns the current viseme into per-frame morph target
// influences on the avatar's meshes.
package avatar3d

import "github.com/normanking/talkinghead/internal/viseme"

// MouthOpen is the jaw-open blend shape boosted for teeth-moving visemes.
const MouthOpen = "mouthOpen"

const (
	// VisemeIntensity is the target weight of the active viseme shape.
	VisemeIntensity = 1.0
	// MouthOpenBoost is the mouthOpen target while a teeth-moving viseme is active.
	MouthOpenBoost = 0.5
)

// trackedShapes lists every blend shape the interpolator drives, in a fixed order.
var trackedShapes = append(viseme.ShapeNames(), MouthOpen)

// TrackedShapes returns the names of all interpolated blend shapes.
func TrackedShapes() []string {
	out := make([]string, len(trackedShapes))
	copy(out, trackedShapes)
	return out
}

// BlendTargets maps every tracked shape to its target intensity for id.
// Shapes other than the active viseme target 0 so they decay away.
func BlendTargets(id viseme.ID) map[string]float64 {
	targets := make(map[string]float64, len(trackedShapes))
	for _, name := range trackedShapes {
		targets[name] = 0
	}
	targets[id.ShapeName()] = VisemeIntensity
	if id.TeethMoving() {
		targets[MouthOpen] = MouthOpenBoost
	}
	return targets
}

// MorphState holds the last interpolated value of each tracked shape.
type MorphState map[string]float64

// NewMorphState returns a state with every tracked shape at rest.
func NewMorphState() MorphState {
	s := make(MorphState, len(trackedShapes))
	for _, name := range trackedShapes {
		s[name] = 0
	}
	return s
}

// Clone copies the state.
func (s MorphState) Clone() MorphState {
	out := make(MorphState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
