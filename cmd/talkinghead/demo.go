package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/asset"
	"github.com/normanking/talkinghead/internal/avatar"
	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/logging"
	"github.com/normanking/talkinghead/internal/loop"
	"github.com/normanking/talkinghead/internal/mixer"
	"github.com/normanking/talkinghead/internal/transport"
	"github.com/normanking/talkinghead/internal/viseme"
)

var (
	demoTurns     int
	demoSeed      int64
	demoUseAssets bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Replay a scripted conversation against a local server",
	Long: `demo starts an in-process conversation server that plays a generated
script (speech turns, viseme batches, body animations) and runs the avatar
against it, logging the avatar state once per second.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoTurns, "turns", 3, "number of bot speech turns")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 0, "script seed (0 picks one)")
	demoCmd.Flags().BoolVar(&demoUseAssets, "assets", false, "load the configured avatar files instead of the built-in rig")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("demo")

	if demoSeed == 0 {
		demoSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(demoSeed))
	steps, length, err := demoScript(rng, demoTurns, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           transport.NewScriptServer(steps, 400*time.Millisecond, logger.Zerolog()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Script server failed")
		}
	}()
	defer srv.Close()
	cfg.Transport.URL = fmt.Sprintf("ws://%s/ws", ln.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, length+2*time.Second)
	defer cancel()

	log.Info().
		Int64("seed", demoSeed).
		Int("turns", demoTurns).
		Int("steps", len(steps)).
		Dur("length", length).
		Msg("Starting demo")

	opts := runOptions{ready: func(rt *avatar.Runtime, lp *loop.Loop) {
		go reportLoop(ctx, rt, lp, logger)
	}}
	if !demoUseAssets {
		opts.loader = func(context.Context) *asset.Bundle { return demoBundle() }
	}
	return run(ctx, cfg, logger, opts)
}

// reportLoop logs a state line once per second, like a renderer's FPS line.
func reportLoop(ctx context.Context, rt *avatar.Runtime, lp *loop.Loop, logger *logging.Logger) {
	log := logger.Component("demo")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lp.Post(func() {
				s := rt.Snapshot()
				morph := rt.MorphState()
				log.Info().
					Str("connection", string(s.Connection)).
					Bool("speaking", s.IsSpeaking).
					Bool("listening", s.IsListening).
					Str("viseme", s.VisemeShape).
					Str("strongest", strongest(morph)).
					Float64("mouthOpen", morph[avatar3d.MouthOpen]).
					Str("animation", s.Animation).
					Str("clip", firstNonEmpty(s.BodyClip, s.IdleClip)).
					Msg("Avatar")
			})
		}
	}
}

func strongest(s avatar3d.MorphState) string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	best, bestV := "", 0.05
	for _, name := range names {
		if name != avatar3d.MouthOpen && s[name] > bestV {
			best, bestV = name, s[name]
		}
	}
	return best
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// demoScript generates a conversation and returns it with its total length.
func demoScript(rng *rand.Rand, turns int, cfg *config.Config) ([]transport.Step, time.Duration, error) {
	var steps []transport.Step
	var total time.Duration
	add := func(after time.Duration, env transport.Envelope) {
		steps = append(steps, transport.Step{After: after, Envelope: env})
		total += after
	}

	for turn := 0; turn < turns; turn++ {
		add(time.Second, transport.Envelope{Type: transport.TypeUserStartedSpeaking})
		add(time.Duration(800+rng.Intn(800))*time.Millisecond, transport.Envelope{Type: transport.TypeUserStoppedSpeaking})
		add(300*time.Millisecond, transport.Envelope{Type: transport.TypeBotStartedSpeaking})

		if len(cfg.Animation.BodyClips) > 0 && rng.Intn(2) == 0 {
			kind := cfg.Animation.BodyClips[rng.Intn(len(cfg.Animation.BodyClips))]
			env, err := transport.NewServerMessage(transport.ServerAnimationEvent, map[string]any{"animation_id": kind})
			if err != nil {
				return nil, 0, err
			}
			add(0, env)
		}

		// Timing data trails the audio start slightly, so the fallback shows first.
		lag := 250 * time.Millisecond
		spoken := time.Duration(0)
		for batch := 0; batch < 3+rng.Intn(3); batch++ {
			segments := demoSentence(rng, 6+rng.Intn(6))
			env, err := transport.NewServerMessage(transport.ServerVisemesEvent, segments)
			if err != nil {
				return nil, 0, err
			}
			if batch == 0 {
				add(lag, env)
			} else {
				add(spoken*3/4, env)
			}
			spoken = time.Duration(viseme.TotalDuration(segments) * float64(time.Second))
		}
		add(spoken, transport.Envelope{Type: transport.TypeBotStoppedSpeaking})
	}
	return steps, total, nil
}

func demoSentence(rng *rand.Rand, n int) []viseme.Segment {
	out := make([]viseme.Segment, n)
	for i := range out {
		id := viseme.ID(1 + rng.Intn(viseme.Count-1))
		if rng.Intn(8) == 0 {
			id = viseme.Silence
		}
		out[i] = viseme.Segment{
			Duration: 0.06 + rng.Float64()*0.12,
			Visemes:  []viseme.ID{id},
		}
	}
	return out
}

// demoBundle is a procedural rig: one head mesh carrying every tracked
// blend shape and a four-bone skeleton with idle and body clips.
func demoBundle() *asset.Bundle {
	skeleton := asset.Skeleton{}
	for _, b := range []string{"Hips", "Spine", "Head", "RightArm"} {
		skeleton.Add(b)
	}
	clips := []*mixer.Clip{
		swayClip("idle_breathing", "Spine", mgl32.Vec3{1, 0, 0}, 4, 0.03),
		swayClip("idle_look_around", "Head", mgl32.Vec3{0, 1, 0}, 5, 0.35),
		shiftClip("idle_shift_weight", "Hips", 6, 0.04),
		swayClip("wave", "RightArm", mgl32.Vec3{0, 0, 1}, 2.5, 1.2),
		swayClip("nod", "Head", mgl32.Vec3{1, 0, 0}, 1.5, 0.25),
		swayClip("shrug", "Spine", mgl32.Vec3{0, 0, 1}, 1.8, 0.1),
		swayClip("thinking", "Head", mgl32.Vec3{0, 0, 1}, 3, 0.15),
	}
	return &asset.Bundle{
		Model: &asset.Model{
			Path:     "builtin",
			Meshes:   []*avatar3d.MorphMesh{avatar3d.NewMorphMesh("Head", avatar3d.TrackedShapes())},
			Skeleton: skeleton,
		},
		Clips: clips,
	}
}

const demoKeys = 16

// swayClip rotates bone back and forth about axis over one period.
func swayClip(name, bone string, axis mgl32.Vec3, duration, amplitude float32) *mixer.Clip {
	times := make([]float32, demoKeys+1)
	values := make([]float32, 0, 4*(demoKeys+1))
	for i := range times {
		t := float32(i) / demoKeys
		times[i] = t * duration
		q := mgl32.QuatRotate(amplitude*float32(math.Sin(2*math.Pi*float64(t))), axis)
		values = append(values, q.V.X(), q.V.Y(), q.V.Z(), q.W)
	}
	return mixer.NewClip(name, []mixer.Track{{Node: bone, Path: mixer.Rotation, Times: times, Values: values}})
}

// shiftClip moves bone side to side over one period.
func shiftClip(name, bone string, duration, amplitude float32) *mixer.Clip {
	times := make([]float32, demoKeys+1)
	values := make([]float32, 0, 3*(demoKeys+1))
	for i := range times {
		t := float32(i) / demoKeys
		times[i] = t * duration
		values = append(values, amplitude*float32(math.Sin(2*math.Pi*float64(t))), 0, 0)
	}
	return mixer.NewClip(name, []mixer.Track{{Node: bone, Path: mixer.Translation, Times: times, Values: values}})
}
