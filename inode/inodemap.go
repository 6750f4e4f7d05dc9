package inode

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay"
)

// Any is the common surface Map needs from either inode kind, for the
// parts of spec.md §5's inode-map read-write lock that don't care
// which kind an entry is (incref/decref bookkeeping, eviction).
type Any interface {
	Number() uint64
	IncRef()
	DecRef() (bool, error)
	MarkUnlinked()
}

var _ Any = (*FileInode)(nil)
var _ Any = (*TreeInode)(nil)

// loadPromise is shared by every concurrent caller of Map.Load for the
// same inode number, so a lazily-promoted child is only fetched from
// the backing store once regardless of how many lookups race for it.
type loadPromise struct {
	done  chan struct{}
	once  sync.Once
	inode Any
	err   error
}

func (p *loadPromise) fulfill(inode Any, err error) {
	p.once.Do(func() {
		p.inode = inode
		p.err = err
		close(p.done)
	})
}

func (p *loadPromise) wait() (Any, error) {
	<-p.done
	return p.inode, p.err
}

// Map owns every live inode of a mount, keyed by inode number, plus
// the lock-free high-watermark inode number allocator spec.md §4.6
// describes ("a background allocator reserves inode numbers in
// ranges so the hot path of create is lock-free").
type Map struct {
	mu       sync.RWMutex
	inodes   map[uint64]Any
	promises map[uint64]*loadPromise

	store *objectstore.Store
	ovl   overlay.Overlay

	nextNumber atomic.Uint64
}

// RootInodeNumber is the well-known inode number of the mount root,
// matching the convention the teacher's fuseops package and most FUSE
// kernel channels use.
const RootInodeNumber = 1

// NewMap constructs an empty inode map. watermark is the persisted
// high-watermark inode number read from the overlay at startup (0 if
// this is a fresh mount).
func NewMap(store *objectstore.Store, ovl overlay.Overlay, watermark uint64) *Map {
	m := &Map{
		inodes:   make(map[uint64]Any),
		promises: make(map[uint64]*loadPromise),
		store:    store,
		ovl:      ovl,
	}
	next := watermark
	if next < RootInodeNumber {
		next = RootInodeNumber
	}
	m.nextNumber.Store(next)
	return m
}

// AllocateInodeNumber reserves and returns the next inode number.
// Lock-free: spec.md §4.6 requires create's hot path not to contend
// with other callers over number allocation.
func (m *Map) AllocateInodeNumber() uint64 {
	return m.nextNumber.Add(1)
}

// Watermark returns the highest inode number issued so far, to be
// persisted via Overlay.UpdateUsedInodeNumber so it survives an
// unclean shutdown.
func (m *Map) Watermark() uint64 {
	return m.nextNumber.Load()
}

// Insert registers an already-constructed inode under its own number,
// for newly created inodes (which skip the Load path entirely since
// there is nothing to fetch).
func (m *Map) Insert(in Any) {
	m.mu.Lock()
	m.inodes[in.Number()] = in
	m.mu.Unlock()
}

// Get returns the live inode for number, if resident.
func (m *Map) Get(number uint64) (Any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.inodes[number]
	return in, ok
}

// Forget drops number from the map once its DecRef reaches zero,
// mirroring spec.md §4.5's "kept alive by reference count" lifetime.
func (m *Map) Forget(number uint64) {
	m.mu.Lock()
	delete(m.inodes, number)
	m.mu.Unlock()
}

// LoadChild promotes the tree entry (number, sourceID, typ) for name
// into a live inode, fetching its contents from the object store on
// first promotion. Concurrent callers racing to load the same number
// share one fetch via loadPromise, per spec.md §4.5's "all concurrent
// lookups for the same name share a single loading promise".
func (m *Map) LoadChild(fc backingstore.FetchContext, number uint64, typ model.EntryType, sourceID objectid.ID) (Any, error) {
	if in, ok := m.Get(number); ok {
		return in, nil
	}

	m.mu.Lock()
	if in, ok := m.inodes[number]; ok {
		m.mu.Unlock()
		return in, nil
	}
	if p, ok := m.promises[number]; ok {
		m.mu.Unlock()
		return p.wait()
	}
	p := &loadPromise{done: make(chan struct{})}
	m.promises[number] = p
	m.mu.Unlock()

	in, err := m.fetchChild(fc, number, typ, sourceID)

	m.mu.Lock()
	delete(m.promises, number)
	if err == nil {
		m.inodes[number] = in
	}
	m.mu.Unlock()

	p.fulfill(in, err)
	return in, err
}

func (m *Map) fetchChild(fc backingstore.FetchContext, number uint64, typ model.EntryType, sourceID objectid.ID) (Any, error) {
	switch typ {
	case model.Tree_:
		tree, err := m.store.GetTree(fc, sourceID)
		if err != nil {
			return nil, err
		}
		return NewTreeInode(number, tree.Entries, m.ovl), nil

	case model.RegularFile, model.ExecutableFile, model.Symlink:
		meta, err := m.store.GetBlobMetadata(fc, sourceID)
		if err != nil {
			return nil, err
		}
		var parentNotify func()
		return NewFileInode(number, sourceID, meta, m.store, m.ovl, parentNotify), nil

	default:
		return nil, monoerr.Invariant("Map.fetchChild", fmt.Errorf("unknown entry type %v", typ))
	}
}
