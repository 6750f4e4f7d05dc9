// Package mount owns the dependencies of a single monofs mount: its
// object store, overlay, journal, inode map and kernel channel, and
// the bookkeeping a graceful restart needs to hand them off intact.
//
// Grounded on the teacher's fs/fs.go (type fileSystem, the struct this
// package's Mount generalizes) and cmd/mount.go (the mount lifecycle:
// validate the mount point, construct the dependencies, serve, wait
// for unmount).
package mount

import (
	"fmt"
	"sync"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/journal"
	"github.com/monofs/monofs/kernelchannel"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/monofslog"
	"github.com/monofs/monofs/monometrics"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay"
	"github.com/monofs/monofs/vfspath"
)

// watermarkOverlay is implemented by both overlay backends
// (fsoverlay.Overlay, dboverlay.Overlay) but is not part of the core
// overlay.Overlay interface since it is only needed at mount startup.
type watermarkOverlay interface {
	Watermark() (uint64, error)
}

// Options configures a new Mount.
type Options struct {
	MountPath string

	Backing backingstore.Store
	Store   *objectstore.Store // already constructed, see objectstore.New
	Overlay overlay.Overlay

	Metrics monometrics.MetricHandle

	// MaxJournalDeltas bounds the journal's memory footprint, per
	// spec.md §4.7.
	MaxJournalDeltas int
}

// Mount owns one mounted working copy: the object store and overlay
// backing it, the inode map and journal built on top, and the kernel
// channel requests are dispatched through. It is the unit a graceful
// restart hands off between an old and new process.
type Mount struct {
	mu sync.RWMutex

	path    string
	backing backingstore.Store
	store   *objectstore.Store
	overlay overlay.Overlay

	inodes  *inode.Map
	journal *journal.Journal
	channel *kernelchannel.Channel

	// paths caches the current path for every live inode number, so the
	// journal can be told full paths instead of bare leaf names; see
	// kernelchannel.Channel's parentRelative for why the channel itself
	// cannot do this (it has no notion of "current path", only parent/
	// name pairs).
	paths map[uint64]vfspath.Relative
}

// New bootstraps a Mount: it fetches the backing store's current root
// tree, seeds the root inode, and restores the inode-number watermark
// from the overlay (0 for a fresh mount).
func New(fc backingstore.FetchContext, rootID objectid.ID, opts Options) (*Mount, error) {
	watermark := uint64(0)
	if wo, ok := opts.Overlay.(watermarkOverlay); ok {
		w, err := wo.Watermark()
		if err != nil {
			return nil, fmt.Errorf("mount: reading inode watermark: %w", err)
		}
		watermark = w
	}

	inodes := inode.NewMap(opts.Store, opts.Overlay, watermark)

	root, err := opts.Store.GetRootTree(fc, rootID)
	if err != nil {
		return nil, fmt.Errorf("mount: fetching root tree: %w", err)
	}
	rootInode := inode.NewTreeInode(inode.RootInodeNumber, root.Entries, opts.Overlay)
	inodes.Insert(rootInode)

	maxDeltas := opts.MaxJournalDeltas
	if maxDeltas <= 0 {
		maxDeltas = 10000
	}
	j := journal.New(rootID, maxDeltas)

	channel := kernelchannel.New(inodes, j, opts.Overlay, opts.Metrics)

	m := &Mount{
		path:    opts.MountPath,
		backing: opts.Backing,
		store:   opts.Store,
		overlay: opts.Overlay,
		inodes:  inodes,
		journal: j,
		channel: channel,
		paths:   map[uint64]vfspath.Relative{inode.RootInodeNumber: {}},
	}
	return m, nil
}

// Channel returns the kernel channel this mount dispatches requests
// through.
func (m *Mount) Channel() *kernelchannel.Channel { return m.channel }

// Path returns the last-known path for an inode number, for diagnostic
// surfaces and journal bookkeeping. Returns false if the inode was
// never observed by this mount (e.g. it was forgotten).
func (m *Mount) Path(number uint64) (vfspath.Relative, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.paths[number]
	return p, ok
}

// RecordPath updates the cached path for number, called by the caller
// of kernelchannel.Channel after a successful CreateFile/MkDir/
// CreateSymlink/Rename/LookUpInode so the journal's path bookkeeping
// stays in sync with the entry map's.
func (m *Mount) RecordPath(number uint64, p vfspath.Relative) {
	m.mu.Lock()
	m.paths[number] = p
	m.mu.Unlock()
}

// ForgetPath drops the cached path for number, called once the kernel
// has forgotten the inode.
func (m *Mount) ForgetPath(number uint64) {
	m.mu.Lock()
	delete(m.paths, number)
	m.mu.Unlock()
}

// Watermark returns the inode map's current high-watermark, to be
// persisted by Shutdown or snapshotted for a graceful-restart handoff.
func (m *Mount) Watermark() uint64 { return m.inodes.Watermark() }

// Journal returns the mount's mutation journal.
func (m *Mount) Journal() *journal.Journal { return m.journal }

// Shutdown persists the inode-number watermark and closes the overlay.
// The takeover package does not call it; a graceful-restart handoff
// transfers the lock fd, the service fd and one kernel-connection fd
// per mount (see the takeover package), not overlay handles.
func (m *Mount) Shutdown() error {
	watermark := m.inodes.Watermark()
	if err := m.overlay.Close(watermark); err != nil {
		return monoerr.Transient("mount.Shutdown", err)
	}
	monofslog.Infof("mount: shut down %s at inode watermark %d", m.path, watermark)
	return nil
}

// LookUpRoot resolves the mount's root inode, for a kernel channel's
// Init handshake.
func (m *Mount) LookUpRoot() (uint64, model.EntryType) {
	return inode.RootInodeNumber, model.Tree_
}
