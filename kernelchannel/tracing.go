package kernelchannel

import (
	"sync"
	"time"

	"github.com/monofs/monofs/monofslog"
)

// traceState is one stage of a request's QUEUE/START/FINISH lifecycle,
// per spec.md §4.8's request tracing table.
type traceState int

const (
	traceQueued traceState = iota
	traceStarted
	traceFinished
)

type traceEntry struct {
	op       string
	state    traceState
	queuedAt time.Time
	startedAt time.Time
}

// traceTable is an in-memory table of live requests, grounded on the
// teacher's debug-logging convention of tagging every FUSE op with its
// op name and request id (fs/fs.go's fuseops.OpContext usage), but kept
// as inspectable state here rather than purely emitted log lines so a
// future diagnostics endpoint can list in-flight requests.
type traceTable struct {
	mu      sync.Mutex
	entries map[uint64]*traceEntry
}

func newTraceTable() *traceTable {
	return &traceTable{entries: make(map[uint64]*traceEntry)}
}

func (t *traceTable) queue(requestID uint64, op string) {
	t.mu.Lock()
	t.entries[requestID] = &traceEntry{op: op, state: traceQueued, queuedAt: time.Now()}
	t.mu.Unlock()
}

func (t *traceTable) start(requestID uint64) {
	t.mu.Lock()
	if e, ok := t.entries[requestID]; ok {
		e.state = traceStarted
		e.startedAt = time.Now()
	}
	t.mu.Unlock()
}

func (t *traceTable) finish(requestID uint64) {
	t.mu.Lock()
	e, ok := t.entries[requestID]
	if ok {
		delete(t.entries, requestID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	elapsed := time.Since(e.queuedAt)
	if elapsed > time.Second {
		monofslog.Warnf("kernelchannel: request %d (%s) took %s", requestID, e.op, elapsed)
	}
}

// InFlight returns the number of requests currently queued or started,
// for diagnostics.
func (t *traceTable) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
