package animation

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/rs/zerolog"
)

// IdleKind is the request kind that re-triggers idle motion instead of a body clip.
const IdleKind = "idle"

// DefaultCrossfade is the blend window between clips, in seconds.
const DefaultCrossfade = 0.5

var (
	// ErrNotReady is returned before Start has succeeded.
	ErrNotReady = errors.New("animation controller not started")
	// ErrBusy is returned when a body animation is already playing.
	ErrBusy = errors.New("body animation already playing")
	// ErrUnknownAnimation is returned for request kinds with no clip.
	ErrUnknownAnimation = errors.New("unknown animation")
	// ErrNoIdleClips is returned by Start when no idle clip is available.
	ErrNoIdleClips = errors.New("no idle clips available")
)

// Request asks for a body animation. Duration, when positive, stretches or
// compresses the clip to that many seconds.
type Request struct {
	Kind     string  `json:"animation_id"`
	Duration float64 `json:"duration,omitempty"`
}

// State is the controller's observable state.
type State int

const (
	StateLoading State = iota
	StateIdle
	StateBody
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle-playing"
	case StateBody:
		return "body-playing"
	default:
		return "loading"
	}
}

// Role tells idle clips from body clips.
type Role string

const (
	RoleIdle  Role = "idle"
	RoleBody  Role = "body"
	RoleOther Role = "other"
)

// Options configures a BlendController.
type Options struct {
	IdleClips []string
	BodyClips []string
	// Aliases maps request kinds to body clip names. Kinds without an alias
	// are looked up as clip names directly.
	Aliases   map[string]string
	Crossfade float64
	Warp      bool
	Rand      *rand.Rand
}

// BlendController is the idle/body state machine. It must only be used from
// the loop goroutine.
type BlendController struct {
	mixer   Mixer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	rng     *rand.Rand

	idle      []string
	body      map[string]bool
	aliases   map[string]string
	crossfade float64
	warp      bool

	state      State
	idleAction Action
	bodyAction Action
	onComplete func()
}

// NewBlendController creates a controller over mixer. Clips named in both
// sets are treated as idle clips.
func NewBlendController(mixer Mixer, opts Options, m *metrics.Metrics, logger zerolog.Logger) *BlendController {
	if opts.Crossfade <= 0 {
		opts.Crossfade = DefaultCrossfade
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	isIdle := make(map[string]bool, len(opts.IdleClips))
	for _, c := range opts.IdleClips {
		isIdle[c] = true
	}
	body := make(map[string]bool, len(opts.BodyClips))
	for _, c := range opts.BodyClips {
		if !isIdle[c] {
			body[c] = true
		}
	}
	return &BlendController{
		mixer:     mixer,
		logger:    logger.With().Str("component", "animation").Logger(),
		metrics:   m,
		rng:       opts.Rand,
		idle:      append([]string(nil), opts.IdleClips...),
		body:      body,
		aliases:   opts.Aliases,
		crossfade: opts.Crossfade,
		warp:      opts.Warp,
	}
}

// Start begins idle motion with a random idle clip.
func (b *BlendController) Start() error {
	if b.state != StateLoading {
		return nil
	}
	action, err := b.pickIdle("")
	if err != nil {
		return err
	}
	b.prepare(action, 1)
	action.Play()
	b.idleAction = action
	b.state = StateIdle
	b.logger.Info().Str("clip", action.Clip()).Msg("Idle animation started")
	return nil
}

// State returns the current state.
func (b *BlendController) State() State { return b.state }

// IdleClip returns the active idle clip name, if any.
func (b *BlendController) IdleClip() string {
	if b.idleAction == nil {
		return ""
	}
	return b.idleAction.Clip()
}

// BodyClip returns the playing body clip name, if any.
func (b *BlendController) BodyClip() string {
	if b.bodyAction == nil {
		return ""
	}
	return b.bodyAction.Clip()
}

// Role reports how clip is used by this controller.
func (b *BlendController) Role(clip string) Role {
	if b.body[clip] {
		return RoleBody
	}
	for _, c := range b.idle {
		if c == clip {
			return RoleIdle
		}
	}
	return RoleOther
}

// Request starts a body animation. onComplete runs once the request has been
// served: when the body clip finishes, or immediately for an idle re-trigger.
// A rejected request leaves the controller unchanged and never calls onComplete.
func (b *BlendController) Request(req Request, onComplete func()) error {
	switch {
	case b.state == StateLoading:
		b.metrics.AnimationRequests.WithLabelValues("not_ready").Inc()
		return ErrNotReady
	case b.state == StateBody:
		b.metrics.AnimationRequests.WithLabelValues("dropped").Inc()
		b.logger.Debug().Str("kind", req.Kind).Str("playing", b.BodyClip()).Msg("Dropping animation request while body animation plays")
		return ErrBusy
	}

	if req.Kind == IdleKind {
		b.metrics.AnimationRequests.WithLabelValues("idle").Inc()
		if err := b.nextIdle(b.idleAction); err != nil {
			return err
		}
		if onComplete != nil {
			onComplete()
		}
		return nil
	}

	clip := req.Kind
	if alias, ok := b.aliases[req.Kind]; ok {
		clip = alias
	}
	if !b.body[clip] {
		b.metrics.AnimationRequests.WithLabelValues("unknown").Inc()
		b.logger.Warn().Str("kind", req.Kind).Msg("Ignoring unknown animation")
		return fmt.Errorf("%w: %q", ErrUnknownAnimation, req.Kind)
	}
	action, ok := b.mixer.ClipAction(clip)
	if !ok {
		b.metrics.AnimationRequests.WithLabelValues("unknown").Inc()
		b.logger.Warn().Str("kind", req.Kind).Str("clip", clip).Msg("Animation clip not loaded")
		return fmt.Errorf("%w: clip %q not loaded", ErrUnknownAnimation, clip)
	}

	scale := 1.0
	if req.Duration > 0 && action.Duration() > 0 {
		scale = action.Duration() / req.Duration
	}
	b.prepare(action, scale)
	action.Play()
	b.idleAction.CrossFadeTo(action, b.crossfade, b.warp)

	b.bodyAction = action
	b.onComplete = onComplete
	b.state = StateBody
	b.metrics.AnimationRequests.WithLabelValues("accepted").Inc()
	b.logger.Info().Str("kind", req.Kind).Str("clip", clip).Float64("timeScale", scale).Msg("Body animation started")
	return nil
}

// ClipFinished handles the mixer's finished notification for clip.
// Notifications for clips that are no longer the active idle or body clip
// (for example an idle clip that ends while fading out) are ignored.
func (b *BlendController) ClipFinished(clip string) {
	role := b.Role(clip)
	b.metrics.ClipsFinished.WithLabelValues(string(role)).Inc()

	switch {
	case role == RoleBody && b.state == StateBody && clip == b.BodyClip():
		b.finishBody()
	case role == RoleIdle && b.state == StateIdle && clip == b.IdleClip():
		if err := b.nextIdle(b.idleAction); err != nil {
			b.logger.Error().Err(err).Msg("Failed to continue idle motion")
		}
	default:
		b.logger.Debug().Str("clip", clip).Str("state", b.state.String()).Msg("Ignoring stale clip completion")
	}
}

func (b *BlendController) finishBody() {
	from := b.bodyAction
	done := b.onComplete
	b.bodyAction = nil
	b.onComplete = nil
	b.state = StateIdle

	if err := b.nextIdle(from); err != nil {
		b.logger.Error().Err(err).Msg("Failed to resume idle motion")
	}
	b.logger.Info().Str("clip", from.Clip()).Msg("Body animation finished")
	if done != nil {
		done()
	}
}

// nextIdle crossfades from into a random idle clip.
func (b *BlendController) nextIdle(from Action) error {
	exclude := ""
	if from != nil && b.Role(from.Clip()) == RoleIdle {
		exclude = from.Clip()
	}
	action, err := b.pickIdle(exclude)
	if err != nil {
		return err
	}

	if from == nil || action == from {
		// Only one idle clip: restart it in place.
		b.prepare(action, 1)
		action.Play()
		b.idleAction = action
		return nil
	}

	b.prepare(action, 1)
	action.Play()
	from.CrossFadeTo(action, b.crossfade, b.warp)
	b.idleAction = action
	b.logger.Debug().Str("from", from.Clip()).Str("to", action.Clip()).Msg("Crossfading to idle clip")
	return nil
}

// pickIdle chooses a random loaded idle clip, avoiding exclude when another
// clip is available.
func (b *BlendController) pickIdle(exclude string) (Action, error) {
	candidates := make([]string, 0, len(b.idle))
	for _, c := range b.idle {
		if _, ok := b.mixer.ClipAction(c); ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoIdleClips
	}
	if len(candidates) > 1 && exclude != "" {
		filtered := candidates[:0:0]
		for _, c := range candidates {
			if c != exclude {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	action, _ := b.mixer.ClipAction(candidates[b.rng.Intn(len(candidates))])
	return action, nil
}

func (b *BlendController) prepare(a Action, timeScale float64) {
	a.Reset()
	a.SetLoopOnce()
	a.SetClampWhenFinished(true)
	a.SetTimeScale(timeScale)
}
