package objectstore

import (
	"sync"
	"sync/atomic"

	"github.com/monofs/monofs/monofslog"
)

// fetchTracker counts per-process backing-store fetches so the object
// store can deprioritize fetch-heavy processes and periodically log
// their cumulative count, per spec.md §4.3.
type fetchTracker struct {
	deprioritizeThreshold int64
	logEveryN             int64

	counts sync.Map // int32 pid -> *atomic.Int64
}

func newFetchTracker(deprioritizeThreshold, logEveryN int64) *fetchTracker {
	if logEveryN <= 0 {
		logEveryN = 1000
	}
	return &fetchTracker{deprioritizeThreshold: deprioritizeThreshold, logEveryN: logEveryN}
}

// recordFetch increments pid's fetch count, returning the new total.
// It logs a structured event every logEveryN fetches.
func (t *fetchTracker) recordFetch(pid int32) int64 {
	v, _ := t.counts.LoadOrStore(pid, new(atomic.Int64))
	counter := v.(*atomic.Int64)
	n := counter.Add(1)

	if t.logEveryN > 0 && n%t.logEveryN == 0 {
		monofslog.Infof("objectstore: process %d has issued %d backing-store fetches", pid, n)
	}
	return n
}

// isFetchHeavy reports whether pid has crossed the deprioritization
// threshold.
func (t *fetchTracker) isFetchHeavy(pid int32) bool {
	if t.deprioritizeThreshold <= 0 {
		return false
	}
	v, ok := t.counts.Load(pid)
	if !ok {
		return false
	}
	return v.(*atomic.Int64).Load() > t.deprioritizeThreshold
}
