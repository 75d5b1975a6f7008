// Package config provides configuration management for the talking head runtime
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TALKINGHEAD_TRANSPORT_URL.
const EnvPrefix = "TALKINGHEAD"

// Config holds all application configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Visemes   VisemeConfig    `mapstructure:"visemes" yaml:"visemes"`
	Animation AnimationConfig `mapstructure:"animation" yaml:"animation"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Assets    AssetsConfig    `mapstructure:"assets" yaml:"assets"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// TransportConfig configures the conversation server connection
type TransportConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// SessionConfig configures connect-once and the stuck-state watchdog
type SessionConfig struct {
	WatchdogWindow time.Duration `mapstructure:"watchdog_window" yaml:"watchdog_window"`
	MaxRecoveries  int           `mapstructure:"max_recoveries" yaml:"max_recoveries"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// VisemeConfig configures lip-sync scheduling
type VisemeConfig struct {
	FallbackInterval time.Duration `mapstructure:"fallback_interval" yaml:"fallback_interval"`
}

// AnimationConfig configures idle and body clips
type AnimationConfig struct {
	IdleClips []string          `mapstructure:"idle_clips" yaml:"idle_clips"`
	BodyClips []string          `mapstructure:"body_clips" yaml:"body_clips"`
	Aliases   map[string]string `mapstructure:"aliases" yaml:"aliases"`   // request kind -> clip
	Crossfade float64           `mapstructure:"crossfade" yaml:"crossfade"` // seconds
	Warp      bool              `mapstructure:"warp" yaml:"warp"`
}

// RenderConfig configures the frame loop
type RenderConfig struct {
	FPS      int     `mapstructure:"fps" yaml:"fps"`
	LerpRate float64 `mapstructure:"lerp_rate" yaml:"lerp_rate"` // per second
}

// AssetsConfig names the avatar and animation files
type AssetsConfig struct {
	Avatar     string            `mapstructure:"avatar" yaml:"avatar"`
	Animations map[string]string `mapstructure:"animations" yaml:"animations"` // clip name -> file
}

// MetricsConfig configures the Prometheus endpoint; empty Addr disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Console bool   `mapstructure:"console" yaml:"console"`
	JSON    bool   `mapstructure:"json" yaml:"json"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			URL:              "ws://localhost:7860/ws",
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     20 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Session: SessionConfig{
			WatchdogWindow: 1500 * time.Millisecond,
			MaxRecoveries:  3,
			ConnectTimeout: 30 * time.Second,
		},
		Visemes: VisemeConfig{
			FallbackInterval: 120 * time.Millisecond,
		},
		Animation: AnimationConfig{
			IdleClips: []string{"idle_breathing", "idle_look_around", "idle_shift_weight"},
			BodyClips: []string{"wave", "nod", "shrug", "thinking"},
			Aliases:   map[string]string{},
			Crossfade: 0.5,
			Warp:      false,
		},
		Render: RenderConfig{
			FPS:      60,
			LerpRate: 5,
		},
		Assets: AssetsConfig{
			Avatar:     "assets/avatar.glb",
			Animations: map[string]string{},
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Log: LogConfig{
			Level:   "info",
			Dir:     "",
			Console: true,
			JSON:    false,
		},
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".talkinghead"), nil
}

// DefaultPath returns ~/.talkinghead/config.yaml
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// newViper creates a viper instance with defaults and env overrides bound
func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// settings flattens cfg into viper keys
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"transport.url":               cfg.Transport.URL,
		"transport.handshake_timeout": cfg.Transport.HandshakeTimeout,
		"transport.ping_interval":     cfg.Transport.PingInterval,
		"transport.write_timeout":     cfg.Transport.WriteTimeout,
		"session.watchdog_window":     cfg.Session.WatchdogWindow,
		"session.max_recoveries":      cfg.Session.MaxRecoveries,
		"session.connect_timeout":     cfg.Session.ConnectTimeout,
		"visemes.fallback_interval":   cfg.Visemes.FallbackInterval,
		"animation.idle_clips":        cfg.Animation.IdleClips,
		"animation.body_clips":        cfg.Animation.BodyClips,
		"animation.aliases":           cfg.Animation.Aliases,
		"animation.crossfade":         cfg.Animation.Crossfade,
		"animation.warp":              cfg.Animation.Warp,
		"render.fps":                  cfg.Render.FPS,
		"render.lerp_rate":            cfg.Render.LerpRate,
		"assets.avatar":               cfg.Assets.Avatar,
		"assets.animations":           cfg.Assets.Animations,
		"metrics.addr":                cfg.Metrics.Addr,
		"log.level":                   cfg.Log.Level,
		"log.dir":                     cfg.Log.Dir,
		"log.console":                 cfg.Log.Console,
		"log.json":                    cfg.Log.JSON,
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for k, val := range settings(cfg) {
		v.SetDefault(k, val)
	}
}

// Load reads configuration from path (DefaultPath when empty), a .env file
// in the working directory, and TALKINGHEAD_* environment variables. A
// missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	_ = godotenv.Load()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Validate rejects settings the runtime cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Transport.URL == "":
		return fmt.Errorf("transport.url is required")
	case c.Session.MaxRecoveries < 0:
		return fmt.Errorf("session.max_recoveries must be >= 0")
	case c.Render.FPS <= 0:
		return fmt.Errorf("render.fps must be > 0")
	case c.Render.LerpRate <= 0:
		return fmt.Errorf("render.lerp_rate must be > 0")
	case c.Animation.Crossfade < 0:
		return fmt.Errorf("animation.crossfade must be >= 0")
	case len(c.Animation.IdleClips) == 0:
		return fmt.Errorf("animation.idle_clips must name at least one clip")
	}
	return nil
}

// Save writes the configuration to path
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	for k, val := range settings(cfg) {
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		v.Set(k, val)
	}
	return v.WriteConfigAs(path)
}
