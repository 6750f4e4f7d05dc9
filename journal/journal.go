// Package journal records the mutation history of a mount's working
// copy as a chain of deltas, per spec.md §4.7.
//
// The chain is built on an intrusive doubly linked list in the style
// of the teacher's common.Queue[T] (common/queue.go, a singly linked
// start/end list), generalized here to link both directions: deltas
// must be walked backwards from the head during AccumulateRange and
// pruned from the tail under memory pressure, neither of which
// common.Queue exposes.
package journal

import (
	"time"

	"github.com/monofs/monofs/monofslog"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/vfspath"
)

// EventKind identifies the kind of mutation a Delta records.
type EventKind int

const (
	EventCreated EventKind = iota
	EventRemoved
	EventChanged
	EventRenamed
	EventReplaced
	EventHashUpdate
	EventUncleanPaths
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventRemoved:
		return "removed"
	case EventChanged:
		return "changed"
	case EventRenamed:
		return "renamed"
	case EventReplaced:
		return "replaced"
	case EventHashUpdate:
		return "hash_update"
	case EventUncleanPaths:
		return "unclean_paths"
	default:
		return "unknown"
	}
}

// PathState records whether a path existed immediately before and
// immediately after the event(s) that mention it.
type PathState struct {
	ExistedBefore bool
	ExistedAfter  bool
}

// Delta is one recorded mutation, or (after compaction or
// AccumulateRange) several folded together.
type Delta struct {
	FromSequence uint64
	ToSequence   uint64
	Time         time.Time

	SourceHash objectid.ID
	TargetHash objectid.ID

	Kind  EventKind
	Paths map[string]PathState

	prev, next *Delta // prev = older, next = newer
	refs       int32
}

// singlePath returns the one path Paths mentions and true, or
// ("", false) if Paths does not mention exactly one path. Used by
// compaction to decide whether a new recordChanged can merge into the
// existing head.
func (d *Delta) singlePath() (string, bool) {
	if len(d.Paths) != 1 {
		return "", false
	}
	for p := range d.Paths {
		return p, true
	}
	return "", false
}

// Journal is the append-only, strictly linearized event log backing
// spec.md §4.7. It is not safe for concurrent use without external
// synchronization; the kernel channel serializes mutations through the
// per-inode and mount-global rename locks before they reach here.
type Journal struct {
	head, tail *Delta // head = newest, tail = oldest
	len        int

	nextSeq  uint64
	headHash objectid.ID

	maxDeltas int // Unbounded means no cap; otherwise the retained chain length, floored at 1
	prunedSeq uint64

	generation uint64 // bumped on every append/compaction/prune/Close; invalidates the AccumulateRange cache

	cacheValid  bool
	cacheLimit  uint64
	cacheGen    uint64
	cacheResult AccumulatedRange
}

// Unbounded passed as New's maxDeltas disables the memory cap
// entirely. Any non-negative value, including 0, is a real cap:
// spec.md §8's memory-bound property requires that setting the limit
// to 0 still retains exactly one delta, not the whole chain.
const Unbounded = -1

// New constructs an empty journal whose head hash starts at rootHash.
// maxDeltas bounds the chain length under memory pressure: 0 retains
// only the single newest delta, a positive value caps the chain at
// that length, and Unbounded disables the bound.
func New(rootHash objectid.ID, maxDeltas int) *Journal {
	return &Journal{headHash: rootHash, maxDeltas: maxDeltas}
}

func (j *Journal) append(kind EventKind, paths map[string]PathState, sourceHash, targetHash objectid.ID) *Delta {
	j.nextSeq++
	d := &Delta{
		FromSequence: j.nextSeq,
		ToSequence:   j.nextSeq,
		Time:         time.Now(),
		SourceHash:   sourceHash,
		TargetHash:   targetHash,
		Kind:         kind,
		Paths:        paths,
	}

	if j.head != nil {
		j.head.next = d
		d.prev = j.head
	} else {
		j.tail = d
	}
	j.head = d
	j.len++
	j.headHash = targetHash
	j.generation++

	j.enforceMemoryCap()
	return d
}

func single(p string, s PathState) map[string]PathState {
	return map[string]PathState{p: s}
}

// RecordCreated appends a Created event for path.
func (j *Journal) RecordCreated(path vfspath.Relative) *Delta {
	return j.append(EventCreated, single(path.String(), PathState{ExistedBefore: false, ExistedAfter: true}), j.headHash, j.headHash)
}

// RecordRemoved appends a Removed event for path.
func (j *Journal) RecordRemoved(path vfspath.Relative) *Delta {
	return j.append(EventRemoved, single(path.String(), PathState{ExistedBefore: true, ExistedAfter: false}), j.headHash, j.headHash)
}

// RecordChanged appends a Changed event for path, compacting into the
// current head in place if it too is a Changed event for the same
// sole path (spec.md §4.7's tail-merge compaction).
func (j *Journal) RecordChanged(path vfspath.Relative) *Delta {
	if j.head != nil && j.head.Kind == EventChanged {
		if p, ok := j.head.singlePath(); ok && p == path.String() {
			j.nextSeq++
			j.head.ToSequence = j.nextSeq
			j.head.Time = time.Now()
			j.generation++
			return j.head
		}
	}
	return j.append(EventChanged, single(path.String(), PathState{ExistedBefore: true, ExistedAfter: true}), j.headHash, j.headHash)
}

// RecordRenamed appends a Renamed event moving oldPath to newPath.
// Neither endpoint's hash changes (spec.md §9's directed resolution:
// rename does not touch the source/target snapshot hash fields).
func (j *Journal) RecordRenamed(oldPath, newPath vfspath.Relative) *Delta {
	paths := map[string]PathState{
		oldPath.String(): {ExistedBefore: true, ExistedAfter: false},
		newPath.String(): {ExistedBefore: false, ExistedAfter: true},
	}
	return j.append(EventRenamed, paths, j.headHash, j.headHash)
}

// RecordReplaced appends a Replaced event: newPath already existed and
// was overwritten by oldPath's contents during the rename.
func (j *Journal) RecordReplaced(oldPath, newPath vfspath.Relative) *Delta {
	paths := map[string]PathState{
		oldPath.String(): {ExistedBefore: true, ExistedAfter: false},
		newPath.String(): {ExistedBefore: true, ExistedAfter: true},
	}
	return j.append(EventReplaced, paths, j.headHash, j.headHash)
}

// RecordHashUpdate appends a HashUpdate event moving the journal's
// head hash to to, with no path entries.
func (j *Journal) RecordHashUpdate(to objectid.ID) *Delta {
	return j.append(EventHashUpdate, map[string]PathState{}, j.headHash, to)
}

// RecordHashUpdateFrom appends a HashUpdate event explicitly recording
// the transition from from to to, for use when the caller already
// knows the prior hash and wants it asserted rather than implied by
// the journal's current state.
func (j *Journal) RecordHashUpdateFrom(from, to objectid.ID) *Delta {
	return j.append(EventHashUpdate, map[string]PathState{}, from, to)
}

// RecordUncleanPaths appends an event describing paths whose
// before/after state could not be determined across an unclean
// shutdown; both existedBefore and existedAfter are recorded true so
// downstream consumers treat them conservatively as "may have
// changed" rather than silently dropping them.
func (j *Journal) RecordUncleanPaths(from, to objectid.ID, paths []vfspath.Relative) *Delta {
	states := make(map[string]PathState, len(paths))
	for _, p := range paths {
		states[p.String()] = PathState{ExistedBefore: true, ExistedAfter: true}
	}
	return j.append(EventUncleanPaths, states, from, to)
}

// enforceMemoryCap prunes from the tail while the chain exceeds
// maxDeltas, always retaining at least one delta. maxDeltas == 0 caps
// the chain at its minimum (one delta); Unbounded disables pruning.
func (j *Journal) enforceMemoryCap() {
	if j.maxDeltas == Unbounded {
		return
	}
	maxRetain := j.maxDeltas
	if maxRetain < 1 {
		maxRetain = 1
	}
	for j.len > maxRetain && j.len > 1 {
		j.prunedSeq = j.tail.ToSequence
		old := j.tail
		j.tail = old.next
		if j.tail != nil {
			j.tail.prev = nil
		}
		old.next = nil
		j.len--
	}
}

// Len reports the number of deltas currently retained.
func (j *Journal) Len() int { return j.len }

// HeadHash returns the journal's current head hash.
func (j *Journal) HeadHash() objectid.ID { return j.headHash }

// Close iteratively walks the chain popping the head, to avoid
// O(chain-length) recursion during garbage collection of a long
// chain (spec.md §4.7's destruction requirement). It is idempotent.
func (j *Journal) Close() {
	for j.head != nil {
		d := j.head
		j.head = d.prev
		d.prev = nil
		d.next = nil
	}
	j.tail = nil
	j.len = 0
	j.generation++
	j.cacheValid = false
}

// AccumulatedRange is the result of AccumulateRange: a single summary
// Delta plus whether any deltas in the requested range were already
// forgotten to compaction or memory pressure.
type AccumulatedRange struct {
	Delta       Delta
	IsTruncated bool
}

// AccumulateRange walks the chain backwards from the head, merging
// every delta whose ToSequence >= limit into a single summary, per
// spec.md §4.7's merge rules. limit defaults to 1 (the entire
// retained chain) when 0 is passed.
//
// The result for a given limit is cached and reused as long as the
// chain hasn't been mutated since (no append, no prune, no Close):
// callers like a status command that re-request the same summary
// range on an idle repo don't re-walk the full chain each time.
func (j *Journal) AccumulateRange(limit uint64) AccumulatedRange {
	if limit == 0 {
		limit = 1
	}

	if j.cacheValid && j.cacheLimit == limit && j.cacheGen == j.generation {
		return j.cacheResult
	}

	if j.head == nil {
		return AccumulatedRange{}
	}

	result := Delta{
		ToSequence:   j.head.ToSequence,
		FromSequence: j.head.FromSequence,
		Time:         j.head.Time,
		TargetHash:   j.head.TargetHash,
		SourceHash:   j.head.SourceHash,
		Paths:        map[string]PathState{},
	}

	truncated := false
	cur := j.head
	for cur != nil && cur.ToSequence >= limit {
		result.FromSequence = cur.FromSequence
		result.SourceHash = cur.SourceHash
		mergePaths(result.Paths, cur.Paths)
		cur = cur.prev
	}

	if result.FromSequence > limit {
		// The chain ran out (or was pruned) before reaching limit: the
		// caller asked for more history than is retained.
		truncated = true
	}
	if j.prunedSeq >= limit && j.prunedSeq > 0 {
		truncated = true
	}

	result.IsTruncated = truncated
	out := AccumulatedRange{Delta: result, IsTruncated: truncated}

	j.cacheValid = true
	j.cacheLimit = limit
	j.cacheGen = j.generation
	j.cacheResult = out

	return out
}

// mergePaths folds newer (already-accumulated) path states with an
// older delta's path states, per spec.md §4.7: keep the oldest
// existedBefore, the newest existedAfter. Impossible sequences (the
// newer state says a path existed before it but the older state says
// the path did not exist after it) are logged, not rejected.
func mergePaths(acc map[string]PathState, older map[string]PathState) {
	for path, oldState := range older {
		if newer, ok := acc[path]; ok {
			if newer.ExistedBefore && !oldState.ExistedAfter {
				monofslog.Warnf("journal: impossible sequence for %q: newer delta saw existedBefore=true but older delta saw existedAfter=false", path)
			}
			acc[path] = PathState{ExistedBefore: oldState.ExistedBefore, ExistedAfter: newer.ExistedAfter}
		} else {
			acc[path] = oldState
		}
	}
}

func (d Delta) String() string { return d.Kind.String() }
