package pool

import (
	"fmt"
	"time"
)

// Summary is the running total of job outcomes for one pool.
type Summary struct {
	Submitted int64
	Completed int64
	TimedOut  int64
	Failed    int64
	Cancelled int64
}

func (s Summary) String() string {
	return fmt.Sprintf("submitted: %d, completed: %d, timedout: %d, failed: %d, cancelled: %d",
		s.Submitted, s.Completed, s.TimedOut, s.Failed, s.Cancelled)
}

// HMS splits a duration into hours, minutes and fractional seconds for the
// elapsed-time breakdowns in job reports.
func HMS(d time.Duration) (hours int, mins int, secs float64) {
	hours = int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	mins = int(d / time.Minute)
	d -= time.Duration(mins) * time.Minute
	secs = d.Seconds()
	return hours, mins, secs
}

// FmtHMS renders a duration as "Hh Mm S.SSSSs".
func FmtHMS(d time.Duration) string {
	h, m, s := HMS(d)
	return fmt.Sprintf("%dh %dm %.4fs", h, m, s)
}
