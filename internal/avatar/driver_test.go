package avatar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStalled(t *testing.T) {
	frame := time.Second / 60
	assert.False(t, Stalled(frame, frame))
	assert.False(t, Stalled(200*time.Millisecond, frame))
	assert.True(t, Stalled(10*time.Second, frame))
	assert.False(t, Stalled(10*time.Second, 0))
}
