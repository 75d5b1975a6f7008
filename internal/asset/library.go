package asset

import (
	"context"
	"fmt"
	"sort"

	"github.com/normanking/talkinghead/internal/mixer"
	"github.com/rs/zerolog"
)

// Sources names the files a Library loads. Animations maps a clip name to the
// file holding it; a file with a single animation is renamed to its key.
type Sources struct {
	Avatar     string
	Animations map[string]string
}

// Bundle is the result of a load: the model (or the placeholder) and every
// clip retargeted to its skeleton.
type Bundle struct {
	Model   *Model
	Clips   []*mixer.Clip
	Dropped int
	Err     error
}

// Library loads avatar assets.
type Library struct {
	logger zerolog.Logger
}

// NewLibrary creates a Library.
func NewLibrary(logger zerolog.Logger) *Library {
	return &Library{logger: logger.With().Str("component", "asset").Logger()}
}

// Load reads the avatar and its animations. A failing avatar yields the
// placeholder model and Bundle.Err; failing animation files are skipped.
func (l *Library) Load(ctx context.Context, src Sources) *Bundle {
	b := &Bundle{}

	model, err := LoadModel(src.Avatar)
	if err != nil {
		l.logger.Error().Err(err).Str("path", src.Avatar).Msg("Avatar load failed, using placeholder")
		b.Model = Placeholder()
		b.Err = fmt.Errorf("load avatar: %w", err)
	} else {
		b.Model = model
		l.logger.Info().
			Str("path", src.Avatar).
			Int("morph_meshes", len(model.Meshes)).
			Int("bones", len(model.Skeleton)).
			Msg("Avatar loaded")
	}

	clips := append([]*mixer.Clip(nil), b.Model.Clips...)

	names := make([]string, 0, len(src.Animations))
	for name := range src.Animations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			b.Err = ctx.Err()
			break
		}
		path := src.Animations[name]
		loaded, err := LoadClips(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("clip", name).Str("path", path).Msg("Animation load failed")
			continue
		}
		if len(loaded) == 1 {
			loaded[0].Name = name
		}
		clips = append(clips, loaded...)
	}

	for _, c := range clips {
		filtered, dropped := FilterTracks(c, b.Model.Skeleton)
		if dropped > 0 {
			l.logger.Debug().Str("clip", c.Name).Int("dropped", dropped).Msg("Dropped tracks for missing bones")
		}
		b.Dropped += dropped
		b.Clips = append(b.Clips, filtered)
	}
	return b
}

// Mixer builds a mixer over the bundle's clips.
func (b *Bundle) Mixer() *mixer.Mixer {
	return mixer.New(b.Clips...)
}
