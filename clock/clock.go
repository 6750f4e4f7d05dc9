// Package clock abstracts time so that objectstore.Store's read-latency
// metrics, the one user of Clock in this module, can be driven
// deterministically in tests instead of depending on wall-clock time.
package clock

import "time"

// Clock abstracts the parts of the time package monofs depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has
	// elapsed, per time.After.
	After(d time.Duration) <-chan time.Time
}
