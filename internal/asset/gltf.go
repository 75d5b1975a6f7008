// Package asset loads avatar models and animation clips from glTF/GLB files.
package asset

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/mixer"
	"github.com/qmuntal/gltf"
)

// Model is a loaded avatar: its morph meshes, skeleton, and embedded clips.
type Model struct {
	Path        string
	Meshes      []*avatar3d.MorphMesh
	Skeleton    Skeleton
	Clips       []*mixer.Clip
	Placeholder bool
}

// Placeholder returns the model rendered while the real avatar is missing.
// It has no morph targets and no skeleton.
func Placeholder() *Model {
	return &Model{Placeholder: true, Skeleton: Skeleton{}}
}

// MorphMeshes returns the meshes as interpolator targets.
func (m *Model) MorphMeshes() []avatar3d.Mesh {
	out := make([]avatar3d.Mesh, len(m.Meshes))
	for i, mesh := range m.Meshes {
		out[i] = mesh
	}
	return out
}

// LoadModel opens an avatar file.
func LoadModel(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("no meshes in %s", path)
	}

	model := &Model{
		Path:     path,
		Meshes:   morphMeshes(doc),
		Skeleton: skeletonOf(doc),
	}
	model.Clips, err = clipsOf(doc, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return model, nil
}

// LoadClips opens an animation file and returns its clips.
func LoadClips(path string) ([]*mixer.Clip, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	clips, err := clipsOf(doc, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("no animations in %s", path)
	}
	return clips, nil
}

// morphMeshes collects every mesh with morph targets. Target names come from
// the mesh's extras.targetNames.
func morphMeshes(doc *gltf.Document) []*avatar3d.MorphMesh {
	var out []*avatar3d.MorphMesh
	for mi, m := range doc.Meshes {
		count := 0
		for _, prim := range m.Primitives {
			if len(prim.Targets) > count {
				count = len(prim.Targets)
			}
		}
		if count == 0 {
			continue
		}

		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("target_%d", i)
		}
		if extras, ok := m.Extras.(map[string]interface{}); ok {
			if targetNames, ok := extras["targetNames"].([]interface{}); ok {
				for i, name := range targetNames {
					if s, ok := name.(string); ok && i < count {
						names[i] = s
					}
				}
			}
		}

		meshName := m.Name
		if meshName == "" {
			meshName = fmt.Sprintf("mesh_%d", mi)
		}
		out = append(out, avatar3d.NewMorphMesh(meshName, names))
	}
	return out
}

// skeletonOf returns the skin joints, or every named node when the file has no skin.
func skeletonOf(doc *gltf.Document) Skeleton {
	s := Skeleton{}
	for _, skin := range doc.Skins {
		for _, j := range skin.Joints {
			if int(j) < len(doc.Nodes) {
				s.Add(doc.Nodes[j].Name)
			}
		}
	}
	if len(s) > 0 {
		return s
	}
	for _, n := range doc.Nodes {
		s.Add(n.Name)
	}
	return s
}

func clipsOf(doc *gltf.Document, dir string) ([]*mixer.Clip, error) {
	clips := make([]*mixer.Clip, 0, len(doc.Animations))
	for ai, anim := range doc.Animations {
		var tracks []mixer.Track
		for _, ch := range anim.Channels {
			si, ok := indexOf(ch.Sampler)
			if ch.Target.Node == nil || !ok || si >= len(anim.Samplers) {
				continue
			}
			path, ok := trackPath(ch.Target.Path)
			if !ok {
				continue
			}
			sampler := anim.Samplers[si]
			in, _ := indexOf(sampler.Input)
			out, _ := indexOf(sampler.Output)
			times, err := readFloats(doc, in, dir)
			if err != nil {
				return nil, fmt.Errorf("animation %d input: %w", ai, err)
			}
			values, err := readFloats(doc, out, dir)
			if err != nil {
				return nil, fmt.Errorf("animation %d output: %w", ai, err)
			}
			if sampler.Interpolation == gltf.InterpolationCubicSpline {
				values = splineValues(values, path.Components())
			}
			tracks = append(tracks, mixer.Track{
				Node:   doc.Nodes[*ch.Target.Node].Name,
				Path:   path,
				Times:  times,
				Values: values,
			})
		}
		name := anim.Name
		if name == "" {
			name = fmt.Sprintf("animation_%d", ai)
		}
		clips = append(clips, mixer.NewClip(name, tracks))
	}
	return clips, nil
}

// indexOf reads a glTF index field, which is a plain or optional integer
// depending on the property.
func indexOf(v interface{}) (int, bool) {
	switch i := v.(type) {
	case int:
		return i, true
	case uint32:
		return int(i), true
	case *int:
		if i != nil {
			return *i, true
		}
	case *uint32:
		if i != nil {
			return int(*i), true
		}
	}
	return -1, false
}

func trackPath(p gltf.TRSProperty) (mixer.Path, bool) {
	switch p {
	case gltf.TRSTranslation:
		return mixer.Translation, true
	case gltf.TRSRotation:
		return mixer.Rotation, true
	case gltf.TRSScale:
		return mixer.Scale, true
	}
	return 0, false
}

// splineValues keeps the value of each (in-tangent, value, out-tangent) triple.
func splineValues(values []float32, comps int) []float32 {
	stride := comps * 3
	out := make([]float32, 0, len(values)/3)
	for i := 0; i+stride <= len(values); i += stride {
		out = append(out, values[i+comps:i+2*comps]...)
	}
	return out
}

// readFloats reads a float accessor as a flat slice.
func readFloats(doc *gltf.Document, accessorIdx int, dir string) ([]float32, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		return nil, fmt.Errorf("accessor %d has no buffer view", accessorIdx)
	}
	if accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("accessor %d is not float", accessorIdx)
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]

	data, err := bufferData(buffer, dir)
	if err != nil {
		return nil, err
	}

	comps := componentsOf(accessor.Type)
	count := int(accessor.Count)
	stride := int(bufferView.ByteStride)
	if stride == 0 {
		stride = comps * 4
	}
	offset := int(bufferView.ByteOffset) + int(accessor.ByteOffset)

	out := make([]float32, 0, count*comps)
	for i := 0; i < count; i++ {
		base := offset + i*stride
		for c := 0; c < comps; c++ {
			at := base + c*4
			if at+4 > len(data) {
				return nil, fmt.Errorf("accessor %d overruns buffer", accessorIdx)
			}
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(data[at:at+4])))
		}
	}
	return out, nil
}

func componentsOf(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	}
	return 1
}

func bufferData(buffer *gltf.Buffer, dir string) ([]byte, error) {
	if len(buffer.Data) > 0 {
		return buffer.Data, nil
	}
	if buffer.URI == "" {
		return nil, fmt.Errorf("buffer has no URI and no embedded data")
	}
	if len(buffer.URI) > 5 && buffer.URI[:5] == "data:" {
		return nil, fmt.Errorf("data URI not supported")
	}
	data, err := os.ReadFile(filepath.Join(dir, buffer.URI))
	if err != nil {
		return nil, fmt.Errorf("read buffer file: %w", err)
	}
	return data, nil
}
