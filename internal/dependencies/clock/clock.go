package clock

import "time"

// Clock provides the current time; swapped for a mock in tests
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock, always in UTC so stored timestamps compare cleanly
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current UTC time truncated to milliseconds
func (c *RealClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
