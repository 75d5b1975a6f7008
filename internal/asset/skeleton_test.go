package asset

import (
	"testing"

	"github.com/normanking/talkinghead/internal/mixer"
	"github.com/stretchr/testify/assert"
)

func track(node string) mixer.Track {
	return mixer.Track{
		Node:   node,
		Path:   mixer.Translation,
		Times:  []float32{0, 1},
		Values: []float32{0, 0, 0, 1, 1, 1},
	}
}

func TestFilterTracks(t *testing.T) {
	clip := mixer.NewClip("wave", []mixer.Track{track("Hips"), track("Tail"), track("Head")})
	s := Skeleton{}
	s.Add("Hips")
	s.Add("Head")
	s.Add("")

	out, dropped := FilterTracks(clip, s)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"Head", "Hips"}, out.Bones())
	assert.Equal(t, clip.Duration, out.Duration)
	assert.Len(t, clip.Tracks, 3, "source clip untouched")
	assert.Len(t, s, 2)
}

func TestFilterTracksPlaceholder(t *testing.T) {
	clip := mixer.NewClip("wave", []mixer.Track{track("Hips")})

	out, dropped := FilterTracks(clip, Placeholder().Skeleton)
	assert.Equal(t, 1, dropped)
	assert.Empty(t, out.Tracks)
	assert.Equal(t, 1.0, out.Duration)
}
