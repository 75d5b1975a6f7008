package viseme

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(d float64, ids ...ID) Segment {
	return Segment{Duration: d, Visemes: ids}
}

func TestLocate_SelectsContainingSegment(t *testing.T) {
	buffer := []Segment{seg(0.2, 1), seg(0.3, 7), seg(0.1, 0)}

	tests := []struct {
		elapsed float64
		want    int
	}{
		{-0.1, 0},
		{0, 0},
		{0.199, 0},
		{0.2, 1},
		{0.49, 1},
		{0.5, 2},
		{0.59, 2},
		{0.6, 2},
		{10, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Locate(buffer, tt.elapsed), "elapsed=%v", tt.elapsed)
	}
	assert.Equal(t, -1, Locate(nil, 0))
}

func TestLocate_RandomBuffersSatisfyBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		buffer := make([]Segment, 1+rng.Intn(8))
		for i := range buffer {
			buffer[i] = seg(rng.Float64()*0.5, ID(rng.Intn(Count)))
		}
		total := TotalDuration(buffer)
		elapsed := rng.Float64() * total * 1.5

		i := Locate(buffer, elapsed)
		require.GreaterOrEqual(t, i, 0)

		start := TotalDuration(buffer[:i])
		end := start + buffer[i].Duration
		if elapsed >= total {
			assert.Equal(t, len(buffer)-1, i)
			continue
		}
		assert.LessOrEqual(t, start, elapsed)
		assert.Less(t, elapsed, end)
	}
}

func TestNewPlan_ElapsedInLastSegment(t *testing.T) {
	buffer := []Segment{seg(0.3, 2), seg(0.2, 5)}

	plan, ok := NewPlan(buffer, 0.35)
	require.True(t, ok)
	assert.Equal(t, ID(5), plan.Current)
	require.Len(t, plan.Transitions, 1)
	assert.True(t, plan.Transitions[0].Reset)
	assert.Equal(t, Silence, plan.Transitions[0].Viseme)
	assert.InDelta(t, 0.15, plan.Transitions[0].Offset, 1e-9)
}

func TestNewPlan_SchedulesLaterSegments(t *testing.T) {
	buffer := []Segment{seg(0.2, 1), seg(0.3, 7), seg(0.1, 0)}

	plan, ok := NewPlan(buffer, 0.05)
	require.True(t, ok)
	assert.Equal(t, ID(1), plan.Current)
	require.Len(t, plan.Transitions, 3)

	assert.Equal(t, ID(7), plan.Transitions[0].Viseme)
	assert.InDelta(t, 0.15, plan.Transitions[0].Offset, 1e-9)
	assert.Equal(t, ID(0), plan.Transitions[1].Viseme)
	assert.InDelta(t, 0.45, plan.Transitions[1].Offset, 1e-9)
	assert.True(t, plan.Transitions[2].Reset)
	assert.InDelta(t, 0.55, plan.Transitions[2].Offset, 1e-9)
}

func TestNewPlan_PastEndResetsImmediately(t *testing.T) {
	plan, ok := NewPlan([]Segment{seg(0.1, 3)}, 2)
	require.True(t, ok)
	assert.Equal(t, ID(3), plan.Current)
	require.Len(t, plan.Transitions, 1)
	assert.Zero(t, plan.Transitions[0].Offset)
}

func TestNewPlan_UsesLeadViseme(t *testing.T) {
	plan, ok := NewPlan([]Segment{seg(0.2, 4, 9, 11)}, 0)
	require.True(t, ok)
	assert.Equal(t, ID(4), plan.Current)
}

func TestParseBatch(t *testing.T) {
	batch, err := ParseBatch([]byte(`[{"duration":0.3,"visemes":[2,3]},{"duration":0.2,"visemes":[5]}]`))
	require.NoError(t, err)
	assert.Equal(t, []Segment{seg(0.3, 2, 3), seg(0.2, 5)}, batch)

	bad := []string{
		``,
		`null`,
		`[]`,
		`{"duration":1}`,
		`[{"duration":0.1,"visemes":[]}]`,
		`[{"duration":-1,"visemes":[1]}]`,
		`[{"duration":0.1,"visemes":[22]}]`,
		`[{"duration":0.1,"visemes":[1]},{"duration":"x","visemes":[1]}]`,
	}
	for _, raw := range bad {
		_, err := ParseBatch([]byte(raw))
		assert.True(t, errors.Is(err, ErrMalformedBatch), "payload %q", raw)
	}
}

func TestShapeNames(t *testing.T) {
	names := ShapeNames()
	assert.Contains(t, names, "viseme_sil")
	assert.Contains(t, names, "viseme_PP")
	assert.Len(t, names, 15)

	assert.Equal(t, "viseme_sil", ID(99).ShapeName())
	assert.True(t, ID(2).TeethMoving())
	assert.False(t, ID(21).TeethMoving())
}
