package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/avatar"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/logging"
	"github.com/normanking/talkinghead/internal/loop"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/transport"
	"github.com/normanking/talkinghead/internal/version"
)

var (
	cfgFile  string
	logLevel string
	url      string
)

var rootCmd = &cobra.Command{
	Use:   "talkinghead",
	Short: "Talking 3D avatar runtime",
	Long: `talkinghead connects to a conversation server and drives a 3D avatar:
lip-sync from viseme timing batches, idle and body animations, and smooth
blend-shape interpolation every frame.

Configuration:
  1. --config flag (explicit path)
  2. $HOME/.talkinghead/config.yaml
  3. .env in the working directory and TALKINGHEAD_* environment variables`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.talkinghead/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.Flags().StringVar(&url, "url", "", "conversation server WebSocket URL (overrides config)")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.LogLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
		JSON:    cfg.Log.JSON,
	})
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if url != "" {
		cfg.Transport.URL = url
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger, runOptions{watchConfig: true})
}

type runOptions struct {
	loader      avatar.Loader
	watchConfig bool
	// ready is called on the loop once the runtime is wired.
	ready func(rt *avatar.Runtime, lp *loop.Loop)
}

// run wires one avatar runtime onto a loop and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts runOptions) error {
	log := logger.Component("main")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.Metrics.Addr != "" {
		go func() {
			err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger.Component("metrics"),
				metrics.Route{Pattern: "/debug/logs", Handler: logger.HistoryHandler()})
			if err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	lp := loop.New(clock.NewSystem(), 1024, logger.Component("loop"))

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	client := transport.NewClient(transport.Config{
		URL:              cfg.Transport.URL,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		WriteTimeout:     cfg.Transport.WriteTimeout,
	}, logger.Zerolog())

	rt := avatar.New(client, avatar.Options{
		Config:  cfg,
		Clock:   lp,
		Post:    lp.Post,
		Loader:  opts.loader,
		Metrics: m,
		Logger:  logger.Zerolog(),
		Spawn:   spawn,
	})

	rt.Bus().Subscribe(bus.EventTypeExhausted, func(e bus.Event) {
		log.Error().Interface("error", e.Data["error"]).Msg("Conversation server unreachable, restart to retry")
	})
	rt.Bus().Subscribe(bus.EventTypeAssetsLoaded, func(e bus.Event) {
		log.Info().
			Interface("clips", e.Data["clips"]).
			Interface("placeholder", e.Data["placeholder"]).
			Msg("Avatar ready")
	})
	if opts.ready != nil {
		lp.Post(func() { opts.ready(rt, lp) })
	}

	if opts.watchConfig {
		path := cfgFile
		if path == "" {
			path, _ = config.DefaultPath()
		}
		w, err := config.NewWatcher(path, func(c *config.Config) {
			lp.Post(func() {
				logger.SetLevel(logging.LogLevel(c.Log.Level))
				rt.ApplyConfig(c)
			})
		}, logger.Zerolog())
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Config hot reload disabled")
		} else {
			defer w.Close()
		}
	}

	rt.Start(ctx)
	go avatar.Drive(ctx, rt, lp.Post, cfg.Render.FPS)

	log.Info().
		Str("version", version.Version).
		Str("url", cfg.Transport.URL).
		Int("fps", cfg.Render.FPS).
		Msg("Talking head running")

	err := lp.Run(ctx)
	lp.Close()
	rt.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Warn().Msg("Timed out waiting for transport shutdown")
	}

	if err != nil && ctx.Err() == nil && !errors.Is(err, loop.ErrClosed) {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
