package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHMS(t *testing.T) {
	h, m, s := HMS(2*time.Hour + 3*time.Minute + 4500*time.Millisecond)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, m)
	assert.Equal(t, 4.5, s)

	h, m, s = HMS(0)
	assert.Equal(t, 0, h)
	assert.Equal(t, 0, m)
	assert.Equal(t, 0.0, s)

	h, m, s = HMS(59*time.Minute + 59*time.Second)
	assert.Equal(t, 0, h)
	assert.Equal(t, 59, m)
	assert.Equal(t, 59.0, s)
}

func TestFmtHMS(t *testing.T) {
	assert.Equal(t, "1h 2m 3.2500s", FmtHMS(time.Hour+2*time.Minute+3250*time.Millisecond))
	assert.Equal(t, "0h 0m 0.0150s", FmtHMS(15*time.Millisecond))
}

func TestSummaryString(t *testing.T) {
	s := Summary{Submitted: 5, Completed: 2, TimedOut: 1, Failed: 1, Cancelled: 1}
	assert.Equal(t, "submitted: 5, completed: 2, timedout: 1, failed: 1, cancelled: 1", s.String())
}
