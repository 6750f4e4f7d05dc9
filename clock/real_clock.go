package clock

import "time"

// SystemClock is the Clock backed by the operating system's wall
// clock. It is what objectstore.Store uses outside of tests: its read
// latency metrics measure real elapsed time.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After delegates to time.After, firing once d has elapsed.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
