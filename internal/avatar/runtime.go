package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/animation"
	"github.com/normanking/talkinghead/internal/asset"
	"github.com/normanking/talkinghead/internal/avatar3d"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/mixer"
	"github.com/normanking/talkinghead/internal/session"
	"github.com/normanking/talkinghead/internal/transport"
	"github.com/normanking/talkinghead/internal/viseme"
)

// ErrMalformedAnimation is logged for animation events that carry no kind.
var ErrMalformedAnimation = errors.New("malformed animation request")

// Transport is the live connection plus its event feed. Handlers are called
// on the transport's goroutines.
type Transport interface {
	session.Transport
	OnState(fn func(session.State)) (unsubscribe func())
	OnEvent(fn func(bus.Event)) (unsubscribe func())
}

// Loader loads the avatar's assets. It runs off the loop.
type Loader func(ctx context.Context) *asset.Bundle

// Options configures a Runtime.
type Options struct {
	Config  *config.Config
	Clock   clock.Clock
	Post    func(fn func()) bool
	Loader  Loader
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Rand    *rand.Rand
	// Spawn runs blocking work (connect, asset loading). Defaults to a new goroutine.
	Spawn func(fn func())
}

// Runtime is one mounted avatar. Apart from Start, every method must be
// called on the loop goroutine that Options.Post feeds.
type Runtime struct {
	cfg     *config.Config
	clock   clock.Clock
	post    func(fn func()) bool
	spawn   func(fn func())
	loader  Loader
	metrics *metrics.Metrics
	logger  zerolog.Logger
	rng     *rand.Rand

	bus       *bus.EventBus
	transport Transport
	session   *session.Controller
	scheduler *viseme.Scheduler
	frames    *avatar3d.Interpolator
	mixer     *mixer.Mixer
	blend     *animation.BlendController
	model     *asset.Model

	viseme    viseme.ID
	pending   *animation.Request
	listening bool
	ready     bool
	closed    bool

	cancelLoad context.CancelFunc
	unsubs     []func()
}

// New builds a runtime over t and wires every subscription. Call Start to
// load assets; the session mounts once they are ready.
func New(t Transport, opts Options) *Runtime {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Spawn == nil {
		opts.Spawn = func(fn func()) { go fn() }
	}
	cfg := opts.Config

	r := &Runtime{
		cfg:       cfg,
		clock:     opts.Clock,
		post:      opts.Post,
		spawn:     opts.Spawn,
		loader:    opts.Loader,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With().Str("component", "avatar").Logger(),
		rng:       opts.Rand,
		bus:       bus.NewEventBus(),
		transport: t,
	}
	if r.loader == nil {
		lib := asset.NewLibrary(opts.Logger)
		sources := asset.Sources{Avatar: cfg.Assets.Avatar, Animations: cfg.Assets.Animations}
		r.loader = func(ctx context.Context) *asset.Bundle { return lib.Load(ctx, sources) }
	}

	r.session = session.NewController(opts.Clock, opts.Post, t, session.Options{
		WatchdogWindow: cfg.Session.WatchdogWindow,
		MaxRecoveries:  cfg.Session.MaxRecoveries,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		OnExhausted:    r.sessionExhausted,
		Spawn:          opts.Spawn,
	}, opts.Metrics, opts.Logger)

	r.scheduler = viseme.NewScheduler(opts.Clock, r.setViseme, viseme.Options{
		FallbackInterval: cfg.Visemes.FallbackInterval,
		Rand:             rand.New(rand.NewSource(opts.Rand.Int63())),
	}, opts.Metrics, opts.Logger)

	r.frames = avatar3d.NewInterpolator(opts.Clock, r.CurrentViseme, cfg.Render.LerpRate, opts.Metrics, opts.Logger)

	r.unsubs = append(r.unsubs,
		t.OnState(func(s session.State) { r.post(func() { r.handleState(s) }) }),
		t.OnEvent(func(ev bus.Event) { r.post(func() { r.bus.Publish(ev) }) }),
		r.bus.Subscribe(bus.EventTypeBotStartedSpeaking, func(bus.Event) { r.scheduler.StartTurn() }),
		r.bus.Subscribe(bus.EventTypeBotStoppedSpeaking, func(bus.Event) { r.scheduler.StopTurn() }),
		r.bus.SubscribeMultiple(
			[]bus.EventType{bus.EventTypeUserStartedSpeaking, bus.EventTypeUserStoppedSpeaking},
			r.handleListening,
		),
		r.bus.Subscribe(bus.EventTypeVisemes, func(ev bus.Event) { r.scheduler.HandlePayload(transport.Payload(ev)) }),
		r.bus.Subscribe(bus.EventTypeAnimation, func(ev bus.Event) { r.HandleAnimationPayload(transport.Payload(ev)) }),
	)
	return r
}

// Bus returns the runtime's event bus. Subscribers run on the loop.
func (r *Runtime) Bus() *bus.EventBus { return r.bus }

// Start loads the avatar's assets off the loop. It may be called from any
// goroutine, once.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.post(func() { r.cancelLoad = cancel })
	r.spawn(func() {
		b := r.loader(ctx)
		if !r.post(func() { r.assetsLoaded(b) }) {
			cancel()
		}
	})
}

func (r *Runtime) assetsLoaded(b *asset.Bundle) {
	if r.closed {
		return
	}
	r.cancelLoad = nil
	r.model = b.Model
	r.mixer = b.Mixer()
	r.frames.Bind(b.Model.MorphMeshes(), r.mixer)

	r.blend = animation.NewBlendController(r.mixer, animation.Options{
		IdleClips: r.cfg.Animation.IdleClips,
		BodyClips: r.cfg.Animation.BodyClips,
		Aliases:   r.cfg.Animation.Aliases,
		Crossfade: r.cfg.Animation.Crossfade,
		Warp:      r.cfg.Animation.Warp,
		Rand:      rand.New(rand.NewSource(r.rng.Int63())),
	}, r.metrics, r.logger)
	r.unsubs = append(r.unsubs, r.mixer.OnFinished(r.blend.ClipFinished))

	if err := r.blend.Start(); err != nil {
		r.logger.Error().Err(err).Strs("idle_clips", r.cfg.Animation.IdleClips).Msg("Idle animation unavailable")
	}

	r.bus.Publish(bus.Event{Type: bus.EventTypeAssetsLoaded, Data: map[string]any{
		"placeholder": b.Model.Placeholder,
		"clips":       r.mixer.Clips(),
		"dropped":     b.Dropped,
	}})

	if b.Err != nil {
		r.logger.Error().Err(b.Err).Msg("Avatar unavailable, staying on placeholder")
		return
	}

	r.ready = true
	r.session.Mount()
	if r.pending != nil {
		r.consumePending()
	}
}

func (r *Runtime) handleState(s session.State) {
	if r.closed {
		return
	}
	r.session.HandleState(s)
	r.bus.Publish(bus.Event{Type: bus.EventTypeConnectionState, Data: map[string]any{"state": s}})
}

func (r *Runtime) sessionExhausted(err error) {
	r.bus.Publish(bus.Event{Type: bus.EventTypeExhausted, Data: map[string]any{"error": err}})
}

func (r *Runtime) handleListening(ev bus.Event) {
	listening := ev.Type == bus.EventTypeUserStartedSpeaking
	if listening == r.listening {
		return
	}
	r.listening = listening
	r.bus.Publish(bus.Event{Type: bus.EventTypeListeningChanged, Data: map[string]any{"listening": listening}})
}

func (r *Runtime) setViseme(id viseme.ID) {
	if id == r.viseme {
		return
	}
	r.viseme = id
	r.bus.Publish(bus.Event{Type: bus.EventTypeVisemeChanged, Data: map[string]any{"viseme": id}})
}

// HandleAnimationPayload parses an animation-event payload into the pending
// request and serves it if the avatar is ready. Malformed payloads and
// requests arriving while one is pending are logged and dropped.
func (r *Runtime) HandleAnimationPayload(raw []byte) {
	var req animation.Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Kind == "" {
		if err == nil {
			err = ErrMalformedAnimation
		}
		r.metrics.AnimationRequests.WithLabelValues("malformed").Inc()
		r.logger.Warn().Err(err).Msg("Ignoring animation payload")
		return
	}
	if r.pending != nil {
		r.metrics.AnimationRequests.WithLabelValues("dropped").Inc()
		r.logger.Debug().Str("kind", req.Kind).Str("pending", r.pending.Kind).Msg("Animation request already pending")
		return
	}
	r.pending = &req
	if r.blend != nil && r.blend.State() != animation.StateLoading {
		r.consumePending()
	}
}

func (r *Runtime) consumePending() {
	req := *r.pending
	err := r.blend.Request(req, r.clearPending)
	if err != nil {
		r.pending = nil
		if !errors.Is(err, animation.ErrBusy) {
			r.logger.Warn().Err(err).Str("kind", req.Kind).Msg("Animation request rejected")
		}
	}
}

func (r *Runtime) clearPending() {
	r.pending = nil
}

// CurrentViseme returns the active viseme id.
func (r *Runtime) CurrentViseme() viseme.ID { return r.viseme }

// Listening reports whether the user is speaking.
func (r *Runtime) Listening() bool { return r.listening }

// PendingAnimation returns the request being served, if any.
func (r *Runtime) PendingAnimation() (animation.Request, bool) {
	if r.pending == nil {
		return animation.Request{}, false
	}
	return *r.pending, true
}

// Session returns the session snapshot.
func (r *Runtime) Session() session.Session { return r.session.Session() }

// MorphState returns the persisted blend-shape values.
func (r *Runtime) MorphState() avatar3d.MorphState { return r.frames.State() }

// Pose returns the skeletal pose sampled by the last frame.
func (r *Runtime) Pose() mixer.Pose {
	if r.mixer == nil {
		return nil
	}
	return r.mixer.Pose()
}

// Model returns the loaded model, or nil while loading.
func (r *Runtime) Model() *asset.Model { return r.model }

// Frame renders one frame and returns its delta in seconds.
func (r *Runtime) Frame() float64 {
	if r.closed {
		return 0
	}
	return r.frames.Tick()
}

// SetVisible forwards a render surface visibility change.
func (r *Runtime) SetVisible(visible bool) {
	r.frames.SetVisible(visible)
}

// ApplyConfig applies the tunables that can change while running.
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	r.frames.SetRate(cfg.Render.LerpRate)
	r.logger.Info().Float64("lerp_rate", cfg.Render.LerpRate).Msg("Config applied")
}

// Close unsubscribes everything, cancels every timer and asset load, and
// unmounts the session.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	for i := len(r.unsubs) - 1; i >= 0; i-- {
		r.unsubs[i]()
	}
	r.unsubs = nil
	if r.cancelLoad != nil {
		r.cancelLoad()
		r.cancelLoad = nil
	}
	r.scheduler.Close()
	r.session.Unmount()
	r.bus.Clear()
	r.logger.Info().Int("retries", r.session.Session().Retries).Msg("Avatar closed")
	return nil
}
