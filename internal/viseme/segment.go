package viseme

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedBatch is returned for viseme payloads that cannot be buffered.
var ErrMalformedBatch = errors.New("malformed viseme batch")

// Segment is one timed unit of a viseme batch.
type Segment struct {
	Duration float64 `json:"duration"` // seconds
	Visemes  []ID    `json:"visemes"`
}

// Lead is the viseme shown while the segment plays.
func (s Segment) Lead() ID {
	return s.Visemes[0]
}

// ParseBatch decodes and validates a batch payload. A batch with any invalid
// segment is rejected whole.
func ParseBatch(raw []byte) ([]Segment, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedBatch)
	}
	var batch []Segment
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if err := Validate(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Validate checks every segment of batch.
func Validate(batch []Segment) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: no segments", ErrMalformedBatch)
	}
	for i, s := range batch {
		if math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) || s.Duration < 0 {
			return fmt.Errorf("%w: segment %d has duration %v", ErrMalformedBatch, i, s.Duration)
		}
		if len(s.Visemes) == 0 {
			return fmt.Errorf("%w: segment %d has no visemes", ErrMalformedBatch, i)
		}
		for _, id := range s.Visemes {
			if !id.Valid() {
				return fmt.Errorf("%w: segment %d has viseme %d", ErrMalformedBatch, i, int(id))
			}
		}
	}
	return nil
}

// TotalDuration sums the segment durations.
func TotalDuration(buffer []Segment) float64 {
	var total float64
	for _, s := range buffer {
		total += s.Duration
	}
	return total
}

// Locate returns the index i with sum(d[0..i-1]) <= elapsed < sum(d[0..i]),
// or the last index when elapsed is past the end. It returns -1 for an empty
// buffer.
func Locate(buffer []Segment, elapsed float64) int {
	if len(buffer) == 0 {
		return -1
	}
	var acc float64
	for i, s := range buffer {
		if elapsed < acc+s.Duration {
			return i
		}
		acc += s.Duration
	}
	return len(buffer) - 1
}

// Transition is a pending viseme change, Offset seconds from plan time.
type Transition struct {
	Offset float64
	Viseme ID
	// Reset marks the return to silence after the last buffered segment.
	Reset bool
}

// Plan is the schedule derived from a buffer at a given elapsed turn time.
type Plan struct {
	Index       int
	Current     ID
	Transitions []Transition
}

// NewPlan computes the current viseme and every later transition for buffer,
// elapsed seconds into the turn. The final transition always resets to
// silence when the buffer runs out.
func NewPlan(buffer []Segment, elapsed float64) (Plan, bool) {
	i := Locate(buffer, elapsed)
	if i < 0 {
		return Plan{Index: -1, Current: Silence}, false
	}

	var start float64
	for _, s := range buffer[:i] {
		start += s.Duration
	}

	offset := buffer[i].Duration - (elapsed - start)
	if offset < 0 {
		offset = 0
	}

	p := Plan{
		Index:       i,
		Current:     buffer[i].Lead(),
		Transitions: make([]Transition, 0, len(buffer)-i),
	}
	for _, s := range buffer[i+1:] {
		p.Transitions = append(p.Transitions, Transition{Offset: offset, Viseme: s.Lead()})
		offset += s.Duration
	}
	p.Transitions = append(p.Transitions, Transition{Offset: offset, Viseme: Silence, Reset: true})
	return p, true
}
