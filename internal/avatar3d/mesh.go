package avatar3d

// Mesh is a render-target mesh with named morph targets. The influence slice
// is written in place; its indices come from the dictionary.
type Mesh interface {
	MorphTargetDictionary() map[string]int
	MorphTargetInfluences() []float64
}

// MorphMesh is a plain in-memory Mesh.
type MorphMesh struct {
	Name       string
	Dictionary map[string]int
	Influences []float64
}

// NewMorphMesh builds a mesh whose targets are names, in order.
func NewMorphMesh(name string, targets []string) *MorphMesh {
	m := &MorphMesh{
		Name:       name,
		Dictionary: make(map[string]int, len(targets)),
		Influences: make([]float64, len(targets)),
	}
	for i, t := range targets {
		m.Dictionary[t] = i
	}
	return m
}

func (m *MorphMesh) MorphTargetDictionary() map[string]int { return m.Dictionary }

func (m *MorphMesh) MorphTargetInfluences() []float64 { return m.Influences }

// Influence returns the influence of the named target, or 0.
func (m *MorphMesh) Influence(name string) float64 {
	i, ok := m.Dictionary[name]
	if !ok || i >= len(m.Influences) {
		return 0
	}
	return m.Influences[i]
}

func writeInfluence(mesh Mesh, name string, value float64) {
	i, ok := mesh.MorphTargetDictionary()[name]
	if !ok {
		return
	}
	influences := mesh.MorphTargetInfluences()
	if i < 0 || i >= len(influences) {
		return
	}
	influences[i] = value
}
