package asset

import "github.com/normanking/talkinghead/internal/mixer"

// Skeleton is the set of bone names present on a loaded avatar.
type Skeleton map[string]bool

// Add records a bone. Empty names are ignored.
func (s Skeleton) Add(name string) {
	if name != "" {
		s[name] = true
	}
}

// Has reports whether the skeleton has the named bone.
func (s Skeleton) Has(name string) bool {
	return s[name]
}

// FilterTracks returns a copy of clip without the tracks whose bone is
// missing from s, and the number of tracks dropped.
func FilterTracks(clip *mixer.Clip, s Skeleton) (*mixer.Clip, int) {
	kept := make([]mixer.Track, 0, len(clip.Tracks))
	for _, t := range clip.Tracks {
		if s.Has(t.Node) {
			kept = append(kept, t)
		}
	}
	out := &mixer.Clip{Name: clip.Name, Duration: clip.Duration, Tracks: kept}
	return out, len(clip.Tracks) - len(kept)
}
