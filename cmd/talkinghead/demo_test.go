package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/transport"
)

func TestDemoScriptShape(t *testing.T) {
	steps, length, err := demoScript(rand.New(rand.NewSource(1)), 2, config.DefaultConfig())
	require.NoError(t, err)
	assert.Positive(t, length)

	var started, stopped, visemes int
	open := false
	for _, s := range steps {
		switch s.Envelope.Type {
		case transport.TypeBotStartedSpeaking:
			assert.False(t, open, "turns never overlap")
			open = true
			started++
		case transport.TypeBotStoppedSpeaking:
			assert.True(t, open)
			open = false
			stopped++
		case transport.TypeServerMessage:
			ev, ok, err := transport.Decode(s.Envelope)
			require.NoError(t, err)
			require.True(t, ok)
			if ev.Type == bus.EventTypeVisemes {
				visemes++
				assert.True(t, open, "visemes arrive inside a turn")
			}
		}
	}
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, stopped)
	assert.GreaterOrEqual(t, visemes, 6)
}

func TestDemoBundleClipsMatchConfig(t *testing.T) {
	b := demoBundle()
	m := b.Mixer()
	cfg := config.DefaultConfig()
	for _, name := range append(cfg.Animation.IdleClips, cfg.Animation.BodyClips...) {
		_, ok := m.ClipAction(name)
		assert.True(t, ok, name)
	}
	for _, c := range b.Clips {
		for _, tr := range c.Tracks {
			assert.True(t, tr.Valid(), c.Name)
			assert.True(t, b.Model.Skeleton.Has(tr.Node), c.Name)
		}
	}
}
