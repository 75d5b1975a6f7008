package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Transport, cfg.Transport)
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, def.Visemes, cfg.Visemes)
	assert.Equal(t, def.Render, cfg.Render)
	assert.Equal(t, def.Animation.IdleClips, cfg.Animation.IdleClips)
	assert.Equal(t, def.Animation.Crossfade, cfg.Animation.Crossfade)
	assert.Equal(t, def.Assets.Avatar, cfg.Assets.Avatar)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  url: ws://brain:9000/ws
session:
  watchdog_window: 2s
animation:
  idle_clips: [idle_a]
  aliases:
    greet: wave
`), 0644))
	t.Setenv("TALKINGHEAD_SESSION_MAX_RECOVERIES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://brain:9000/ws", cfg.Transport.URL)
	assert.Equal(t, 2*time.Second, cfg.Session.WatchdogWindow)
	assert.Equal(t, 5, cfg.Session.MaxRecoveries)
	assert.Equal(t, []string{"idle_a"}, cfg.Animation.IdleClips)
	assert.Equal(t, "wave", cfg.Animation.Aliases["greet"])
	assert.Equal(t, 120*time.Millisecond, cfg.Visemes.FallbackInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  fps: 0\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "render.fps")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Transport.URL = "ws://example:1/ws"
	cfg.Session.WatchdogWindow = 750 * time.Millisecond
	cfg.Assets.Animations = map[string]string{"wave": "anims/wave.glb"}

	require.NoError(t, Save(cfg, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Transport.URL, loaded.Transport.URL)
	assert.Equal(t, cfg.Session.WatchdogWindow, loaded.Session.WatchdogWindow)
	assert.Equal(t, "anims/wave.glb", loaded.Assets.Animations["wave"])
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(DefaultConfig(), path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	cfg := DefaultConfig()
	cfg.Render.LerpRate = 9
	require.NoError(t, Save(cfg, path))

	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-changes:
				if c.Render.LerpRate == 9 {
					return true
				}
			default:
				return false
			}
		}
	}, 3*time.Second, 20*time.Millisecond)
}
