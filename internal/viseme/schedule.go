package viseme

import (
	"time"

	"github.com/normanking/talkinghead/internal/clock"
)

// Schedule is the ordered set of pending transitions for one speech turn. A
// single timer is armed for the head entry; Replace and Clear drop every
// pending entry at once.
type Schedule struct {
	clock   clock.Clock
	apply   func(Transition)
	pending []scheduled
	timer   clock.Timer
	gen     uint64
}

type scheduled struct {
	at time.Time
	Transition
}

// NewSchedule creates an empty schedule that calls apply as entries come due.
func NewSchedule(c clock.Clock, apply func(Transition)) *Schedule {
	return &Schedule{clock: c, apply: apply}
}

// Replace cancels every pending entry and schedules ts relative to base.
func (s *Schedule) Replace(base time.Time, ts []Transition) {
	s.Clear()
	s.pending = make([]scheduled, 0, len(ts))
	for _, t := range ts {
		s.pending = append(s.pending, scheduled{at: base.Add(clock.Seconds(t.Offset)), Transition: t})
	}
	s.arm()
}

// Clear cancels every pending entry.
func (s *Schedule) Clear() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

// Len returns the number of pending entries.
func (s *Schedule) Len() int {
	return len(s.pending)
}

// Pending returns the pending transitions with offsets relative to now.
func (s *Schedule) Pending() []Transition {
	now := s.clock.Now()
	out := make([]Transition, len(s.pending))
	for i, p := range s.pending {
		t := p.Transition
		t.Offset = p.at.Sub(now).Seconds()
		out[i] = t
	}
	return out
}

func (s *Schedule) arm() {
	if len(s.pending) == 0 {
		return
	}
	gen := s.gen
	d := s.pending[0].at.Sub(s.clock.Now())
	s.timer = s.clock.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Schedule) fire(gen uint64) {
	if gen != s.gen {
		return
	}
	s.timer = nil
	now := s.clock.Now()
	for len(s.pending) > 0 && !s.pending[0].at.After(now) {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.apply(next.Transition)
		if gen != s.gen {
			return
		}
	}
	s.arm()
}
