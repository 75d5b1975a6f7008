package viseme

import (
	"math/rand"
	"time"

	"github.com/normanking/talkinghead/internal/clock"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultFallbackInterval is how often a random viseme is shown while a turn
// has no timing data.
const DefaultFallbackInterval = 120 * time.Millisecond

// Options configures a Scheduler.
type Options struct {
	FallbackInterval time.Duration
	Rand             *rand.Rand
}

// Scheduler tracks the open speech turn, its viseme buffer and the
// transitions derived from it. All methods must be called from the loop
// goroutine.
type Scheduler struct {
	clock   clock.Clock
	set     func(ID)
	logger  zerolog.Logger
	metrics *metrics.Metrics
	rng     *rand.Rand

	fallbackInterval time.Duration

	open      bool
	turnStart time.Time
	buffer    []Segment
	schedule  *Schedule
	fallback  clock.Timer
}

// NewScheduler creates a scheduler that publishes the current viseme through set.
func NewScheduler(c clock.Clock, set func(ID), opts Options, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = DefaultFallbackInterval
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Scheduler{
		clock:            c,
		set:              set,
		logger:           logger.With().Str("component", "visemes").Logger(),
		metrics:          m,
		rng:              opts.Rand,
		fallbackInterval: opts.FallbackInterval,
	}
	s.schedule = NewSchedule(c, s.applyTransition)
	return s
}

// StartTurn opens a new speech turn, discarding everything from the previous one.
func (s *Scheduler) StartTurn() {
	s.cancelAll()
	s.buffer = nil
	s.open = true
	s.turnStart = s.clock.Now()
	s.metrics.SpeechTurns.Inc()
	s.metrics.BufferedSegments.Set(0)
	s.armFallback()
	s.logger.Debug().Msg("Speech turn started")
}

// StopTurn closes the turn and returns the mouth to silence.
func (s *Scheduler) StopTurn() {
	s.cancelAll()
	s.buffer = nil
	s.open = false
	s.metrics.BufferedSegments.Set(0)
	s.set(Silence)
	s.logger.Debug().Msg("Speech turn stopped")
}

// HandlePayload parses a raw batch and pushes it. Malformed payloads are
// logged and dropped.
func (s *Scheduler) HandlePayload(raw []byte) {
	batch, err := ParseBatch(raw)
	if err != nil {
		s.metrics.VisemeBatches.WithLabelValues("rejected").Inc()
		s.logger.Warn().Err(err).Msg("Ignoring viseme payload")
		return
	}
	s.Push(batch)
}

// Push appends batch to the buffer and, while a turn is open, rebuilds the
// schedule from the whole buffer.
func (s *Scheduler) Push(batch []Segment) {
	if err := Validate(batch); err != nil {
		s.metrics.VisemeBatches.WithLabelValues("rejected").Inc()
		s.logger.Warn().Err(err).Msg("Ignoring viseme batch")
		return
	}
	s.metrics.VisemeBatches.WithLabelValues("accepted").Inc()
	s.buffer = append(s.buffer, batch...)
	s.metrics.BufferedSegments.Set(float64(len(s.buffer)))

	if !s.open {
		return
	}

	s.stopFallback()
	s.schedule.Clear()

	now := s.clock.Now()
	elapsed := now.Sub(s.turnStart).Seconds()
	plan, ok := NewPlan(s.buffer, elapsed)
	if !ok {
		return
	}
	s.set(plan.Current)
	s.schedule.Replace(now, plan.Transitions)

	s.logger.Debug().
		Int("segments", len(s.buffer)).
		Float64("elapsed", elapsed).
		Int("index", plan.Index).
		Int("pending", len(plan.Transitions)).
		Msg("Viseme schedule rebuilt")
}

// Close cancels every timer. The scheduler must not be used afterwards.
func (s *Scheduler) Close() {
	s.cancelAll()
	s.open = false
}

// TurnOpen reports whether a speech turn is open.
func (s *Scheduler) TurnOpen() bool { return s.open }

// FallbackActive reports whether random visemes are being shown.
func (s *Scheduler) FallbackActive() bool { return s.fallback != nil }

// Buffered returns a copy of the current turn's buffer.
func (s *Scheduler) Buffered() []Segment {
	out := make([]Segment, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Pending returns the scheduled transitions relative to now.
func (s *Scheduler) Pending() []Transition {
	return s.schedule.Pending()
}

func (s *Scheduler) applyTransition(t Transition) {
	s.metrics.VisemeTransitions.Inc()
	s.set(t.Viseme)
}

func (s *Scheduler) cancelAll() {
	s.stopFallback()
	s.schedule.Clear()
}

func (s *Scheduler) armFallback() {
	s.fallback = s.clock.AfterFunc(s.fallbackInterval, s.fallbackTick)
}

func (s *Scheduler) fallbackTick() {
	if s.fallback == nil {
		return
	}
	s.metrics.FallbackTicks.Inc()
	s.set(ID(s.rng.Intn(Count)))
	s.armFallback()
}

func (s *Scheduler) stopFallback() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}
