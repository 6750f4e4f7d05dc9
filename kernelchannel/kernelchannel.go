// Package kernelchannel dispatches filesystem operations against an
// inode.Map, recording each mutation in a journal.Journal, per spec.md
// §4.8.
//
// Grounded on the teacher's fs/fs.go (type fileSystem): its
// inodes/generationBackedInodes bookkeeping and per-operation locking
// discipline (LookUpInode, GetInodeAttributes, MkDir, CreateFile,
// RmDir, Unlink, ReadDir, ReadFile, WriteFile, ...) are generalized
// here to operate against the already-built inode.Map instead of a
// GCS-backed lookup, and the blocking inode.Map.LoadChild call is run
// with a caller-derived backingstore.FetchContext instead of the
// teacher's background context.
package kernelchannel

import (
	"fmt"
	"sync"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/journal"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/monofslog"
	"github.com/monofs/monofs/monometrics"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/overlay"
	"github.com/monofs/monofs/vfspath"
)

// InodeAttributes is the subset of POSIX metadata the channel reports
// for an inode, derived from either its source blob/tree metadata or
// its overlay payload.
type InodeAttributes struct {
	Number uint64
	Mode   uint32
	Size   int64
	Nlink  uint32
}

// RequestContext carries the per-request identity spec.md §4.8
// requires for tracing and fetch-priority decisions: the calling
// process id and a monotonically increasing request id, wrapping a
// cancellable context.Context.
type RequestContext struct {
	backingstore.FetchContext
	RequestID uint64
}

// Channel is the per-mount dispatch surface: it owns the inode map,
// the journal recording every mutation, and the mount-global rename
// lock spec.md §4.8 requires (POSIX rename must be atomic with respect
// to any other rename in the same mount, which a pair of per-directory
// locks cannot guarantee alone).
type Channel struct {
	inodes  *inode.Map
	journal *journal.Journal
	ovl     overlay.Overlay
	metrics monometrics.MetricHandle

	renameMu sync.Mutex

	requestIDs  sync.Mutex
	nextRequest uint64

	trace *traceTable
}

// New constructs a Channel over an already-populated inode map, rooted
// at inode.RootInodeNumber.
func New(inodes *inode.Map, j *journal.Journal, ovl overlay.Overlay, metrics monometrics.MetricHandle) *Channel {
	if metrics == nil {
		metrics = monometrics.NewNoop()
	}
	return &Channel{inodes: inodes, journal: j, ovl: ovl, metrics: metrics, trace: newTraceTable()}
}

// NewRequest mints a RequestContext for an incoming kernel request,
// assigning it the next monotonic request id for the request-tracing
// table.
func (c *Channel) NewRequest(fc backingstore.FetchContext) RequestContext {
	c.requestIDs.Lock()
	c.nextRequest++
	id := c.nextRequest
	c.requestIDs.Unlock()
	return RequestContext{FetchContext: fc, RequestID: id}
}

// traceOp registers rc in the per-kind request-tracing table for the
// duration of the call (spec.md §4.8: every live request, not just
// lookups, is registered QUEUE/START/FINISH). Callers defer the
// returned func to record FINISH.
func (c *Channel) traceOp(rc RequestContext, op string) func() {
	c.trace.queue(rc.RequestID, op)
	c.trace.start(rc.RequestID)
	return func() { c.trace.finish(rc.RequestID) }
}

func (c *Channel) getTree(number uint64) (*inode.TreeInode, error) {
	in, ok := c.inodes.Get(number)
	if !ok {
		return nil, monoerr.Inode("kernelchannel", errnoESTALE, fmt.Errorf("inode %d not resident", number))
	}
	t, ok := in.(*inode.TreeInode)
	if !ok {
		return nil, monoerr.Inode("kernelchannel", errnoENOTDIR, fmt.Errorf("inode %d is not a directory", number))
	}
	return t, nil
}

func (c *Channel) getFile(number uint64) (*inode.FileInode, error) {
	in, ok := c.inodes.Get(number)
	if !ok {
		return nil, monoerr.Inode("kernelchannel", errnoESTALE, fmt.Errorf("inode %d not resident", number))
	}
	f, ok := in.(*inode.FileInode)
	if !ok {
		return nil, monoerr.Inode("kernelchannel", errnoEISDIR, fmt.Errorf("inode %d is not a regular file", number))
	}
	return f, nil
}

// LookUpInode resolves name under parent, promoting a not-yet-resident
// child through the inode map on first lookup. Mirrors fs.go's
// lookUpOrCreateChildInode, minus the GCS generation-conflict handling
// this tree-based model has no analogue for.
func (c *Channel) LookUpInode(rc RequestContext, op string, parent uint64, name vfspath.Component) (number uint64, typ model.EntryType, err error) {
	defer c.traceOp(rc, op)()

	dir, err := c.getTree(parent)
	if err != nil {
		return 0, 0, err
	}
	num, typ, sourceID, ok := dir.LookUpChild(name)
	if !ok {
		return 0, 0, monoerr.Inode("kernelchannel.LookUpInode", errnoENOENT, fmt.Errorf("no such entry %q", name))
	}
	if num == 0 {
		// Not yet promoted: mint a fresh number and load it through the
		// map's shared promise so concurrent lookups for the same name
		// converge on one fetch.
		num = c.inodes.AllocateInodeNumber()
	}
	if _, err := c.inodes.LoadChild(rc.FetchContext, num, typ, sourceID); err != nil {
		return 0, 0, err
	}
	return num, typ, nil
}

// GetInodeAttributes reports the current metadata for number.
func (c *Channel) GetInodeAttributes(rc RequestContext, number uint64) (InodeAttributes, error) {
	defer c.traceOp(rc, "GetInodeAttributes")()

	in, ok := c.inodes.Get(number)
	if !ok {
		return InodeAttributes{}, monoerr.Inode("kernelchannel.GetInodeAttributes", errnoESTALE, fmt.Errorf("inode %d not resident", number))
	}
	switch v := in.(type) {
	case *inode.FileInode:
		size, err := v.Size()
		if err != nil {
			return InodeAttributes{}, err
		}
		return InodeAttributes{Number: number, Mode: model.RegularFile.Mode(), Size: size, Nlink: 1}, nil
	case *inode.TreeInode:
		return InodeAttributes{Number: number, Mode: model.Tree_.Mode(), Nlink: 1}, nil
	default:
		return InodeAttributes{}, monoerr.Invariant("kernelchannel.GetInodeAttributes", fmt.Errorf("inode %d has unknown type %T", number, in))
	}
}

// SetInodeAttributes implements the truncate half of setattr; mode and
// ownership changes are metadata spec.md §4.5 does not persist (the
// tree model derives permissions from entry type).
func (c *Channel) SetInodeAttributes(rc RequestContext, number uint64, newSize *int64) (InodeAttributes, error) {
	defer c.traceOp(rc, "SetInodeAttributes")()

	if newSize != nil {
		f, err := c.getFile(number)
		if err != nil {
			return InodeAttributes{}, err
		}
		if err := f.TruncateAndRun(rc.FetchContext, *newSize, func() error { return nil }); err != nil {
			return InodeAttributes{}, err
		}
	}
	return c.GetInodeAttributes(rc, number)
}

// MkDir creates a new, empty directory named name under parent.
func (c *Channel) MkDir(rc RequestContext, parent uint64, name vfspath.Component) (uint64, error) {
	defer c.traceOp(rc, "MkDir")()

	dir, err := c.getTree(parent)
	if err != nil {
		return 0, err
	}
	number := c.inodes.AllocateInodeNumber()
	if err := dir.CreateChild(name, number, model.Tree_); err != nil {
		return 0, err
	}
	child := inode.NewTreeInode(number, nil, c.ovl)
	c.inodes.Insert(child)
	c.journal.RecordCreated(parentRelative(parent, name))
	return number, nil
}

// CreateFile creates a new, empty regular file named name under
// parent, already materialized (an empty file has no useful
// unmaterialized blob state).
func (c *Channel) CreateFile(rc RequestContext, parent uint64, name vfspath.Component, executable bool) (uint64, error) {
	defer c.traceOp(rc, "CreateFile")()

	dir, err := c.getTree(parent)
	if err != nil {
		return 0, err
	}
	typ := model.RegularFile
	if executable {
		typ = model.ExecutableFile
	}
	number := c.inodes.AllocateInodeNumber()
	if err := dir.CreateChild(name, number, typ); err != nil {
		return 0, err
	}
	child := inode.NewFileInode(number, objectid.ID{}, model.BlobMetadata{}, nil, c.ovl, nil)
	if err := child.TruncateAndRun(rc.FetchContext, 0, func() error { return nil }); err != nil {
		return 0, err
	}
	c.inodes.Insert(child)
	c.journal.RecordCreated(parentRelative(parent, name))
	return number, nil
}

// RmDir removes the empty directory named name from parent.
func (c *Channel) RmDir(rc RequestContext, parent uint64, name vfspath.Component) error {
	defer c.traceOp(rc, "RmDir")()

	dir, err := c.getTree(parent)
	if err != nil {
		return err
	}
	number, typ, _, ok := dir.LookUpChild(name)
	if !ok {
		return monoerr.Inode("kernelchannel.RmDir", errnoENOENT, fmt.Errorf("no such entry %q", name))
	}
	if typ != model.Tree_ {
		return monoerr.Inode("kernelchannel.RmDir", errnoENOTDIR, fmt.Errorf("%q is not a directory", name))
	}
	if child, ok := c.inodes.Get(number); ok {
		if t, ok := child.(*inode.TreeInode); ok && t.HasChildren() {
			return inode.ErrNotEmpty
		}
	}
	if err := dir.DeleteChild(name); err != nil {
		return err
	}
	if child, ok := c.inodes.Get(number); ok {
		child.MarkUnlinked()
		if dropped, err := child.DecRef(); err == nil && dropped {
			c.inodes.Forget(number)
		}
	}
	c.journal.RecordRemoved(parentRelative(parent, name))
	return nil
}

// Unlink removes name's regular-file entry from parent.
func (c *Channel) Unlink(rc RequestContext, parent uint64, name vfspath.Component) error {
	defer c.traceOp(rc, "Unlink")()

	dir, err := c.getTree(parent)
	if err != nil {
		return err
	}
	number, typ, _, ok := dir.LookUpChild(name)
	if !ok {
		return monoerr.Inode("kernelchannel.Unlink", errnoENOENT, fmt.Errorf("no such entry %q", name))
	}
	if typ == model.Tree_ {
		return monoerr.Inode("kernelchannel.Unlink", errnoEISDIR, fmt.Errorf("%q is a directory", name))
	}
	if err := dir.DeleteChild(name); err != nil {
		return err
	}
	if child, ok := c.inodes.Get(number); ok {
		child.MarkUnlinked()
		if dropped, err := child.DecRef(); err == nil && dropped {
			c.inodes.Forget(number)
		}
	}
	c.journal.RecordRemoved(parentRelative(parent, name))
	return nil
}

// Rename moves name from oldParent to newName under newParent.
// Serialized against every other rename in the mount by renameMu (POSIX
// rename's atomicity cannot be expressed with the two directories' own
// locks alone, since a concurrent rename of the reverse pair could
// otherwise interleave), and additionally holds both the source and
// destination parent directory locks for the whole operation, acquired
// in fixed order by inode number (spec.md §4.5/§5's deadlock-avoidance
// rule: acquire two inode locks in order of inode number, and always
// take the rename lock before any inode lock). Holding both locks
// across the lookup-move-insert sequence is what prevents a concurrent
// CreateFile/Unlink under the destination directory — which does not
// take renameMu — from interleaving between the conflict check and the
// insert. Mirrors the teacher's single mutex over the whole fileSystem
// for mutating operations, specialized here to the two directories a
// rename actually touches.
func (c *Channel) Rename(rc RequestContext, oldParent uint64, oldName vfspath.Component, newParent uint64, newName vfspath.Component) error {
	defer c.traceOp(rc, "Rename")()

	c.renameMu.Lock()
	defer c.renameMu.Unlock()

	src, err := c.getTree(oldParent)
	if err != nil {
		return err
	}
	dst, err := c.getTree(newParent)
	if err != nil {
		return err
	}

	lockTreePairInOrder(src, dst)
	defer unlockTreePairInOrder(src, dst)

	number, typ, sourceID, err := src.MoveChildLocked(oldName)
	if err != nil {
		return err
	}

	if existingNumber, existingTyp, _, ok := dst.LookUpChildLocked(newName); ok {
		if existingTyp == model.Tree_ {
			if t, ok := c.inodes.Get(existingNumber); ok && t.(*inode.TreeInode).HasChildren() {
				// undo the source-side removal before failing
				_ = src.InsertChildLocked(oldName, number, typ, sourceID)
				return inode.ErrNotEmpty
			}
		}
		if child, ok := c.inodes.Get(existingNumber); ok {
			child.MarkUnlinked()
			if dropped, err := child.DecRef(); err == nil && dropped {
				c.inodes.Forget(existingNumber)
			}
		}
		c.journal.RecordReplaced(parentRelative(oldParent, oldName), parentRelative(newParent, newName))
	} else {
		c.journal.RecordRenamed(parentRelative(oldParent, oldName), parentRelative(newParent, newName))
	}

	return dst.InsertChildLocked(newName, number, typ, sourceID)
}

// lockTreePairInOrder acquires a and b's directory locks in order of
// inode number (spec.md §5's deadlock-avoidance rule), tolerating
// a == b for a rename within a single directory.
func lockTreePairInOrder(a, b *inode.TreeInode) {
	if a.Number() == b.Number() {
		a.Lock()
		return
	}
	first, second := a, b
	if first.Number() > second.Number() {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
}

// unlockTreePairInOrder releases the locks lockTreePairInOrder
// acquired. Unlock order does not matter for deadlock avoidance, only
// the acquisition order does.
func unlockTreePairInOrder(a, b *inode.TreeInode) {
	if a.Number() == b.Number() {
		a.Unlock()
		return
	}
	a.Unlock()
	b.Unlock()
}

// OpenDir increments dir's reference count for the lifetime of an open
// directory handle.
func (c *Channel) OpenDir(rc RequestContext, number uint64) error {
	defer c.traceOp(rc, "OpenDir")()

	dir, err := c.getTree(number)
	if err != nil {
		return err
	}
	dir.IncRef()
	return nil
}

// ReadDir returns every child entry of number, including the synthetic
// "." and ".." entries the kernel channel (not TreeInode) is
// responsible for since only it knows the parent's inode number.
func (c *Channel) ReadDir(rc RequestContext, number, parent uint64) ([]model.TreeEntry, error) {
	defer c.traceOp(rc, "ReadDir")()

	dir, err := c.getTree(number)
	if err != nil {
		return nil, err
	}
	entries := dir.ReadEntries()
	out := make([]model.TreeEntry, 0, len(entries)+2)
	out = append(out, model.TreeEntry{Name: ".", Type: model.Tree_})
	out = append(out, model.TreeEntry{Name: "..", Type: model.Tree_})
	out = append(out, entries...)
	return out, nil
}

// ReleaseDirHandle decrements the reference count an OpenDir call
// incremented.
func (c *Channel) ReleaseDirHandle(rc RequestContext, number uint64) error {
	defer c.traceOp(rc, "ReleaseDirHandle")()

	dir, err := c.getTree(number)
	if err != nil {
		return err
	}
	if dropped, err := dir.DecRef(); err != nil {
		return err
	} else if dropped {
		c.inodes.Forget(number)
	}
	return nil
}

// ReadFile reads len(p) bytes of number's contents at off.
func (c *Channel) ReadFile(rc RequestContext, number uint64, p []byte, off int64) (int, error) {
	defer c.traceOp(rc, "ReadFile")()

	f, err := c.getFile(number)
	if err != nil {
		return 0, err
	}
	return f.Read(rc.FetchContext, p, off)
}

// WriteFile writes p to number's contents at off, recording a changed
// delta in the journal (RecordChanged compacts repeated writes to the
// same path into one delta).
func (c *Channel) WriteFile(rc RequestContext, number uint64, parent uint64, name vfspath.Component, p []byte, off int64) (int, error) {
	defer c.traceOp(rc, "WriteFile")()

	f, err := c.getFile(number)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(rc.FetchContext, p, off)
	if err != nil {
		return n, err
	}
	c.journal.RecordChanged(parentRelative(parent, name))
	return n, nil
}

// ReadSymlink returns a symlink's target, stored as its blob contents.
func (c *Channel) ReadSymlink(rc RequestContext, number uint64) (string, error) {
	defer c.traceOp(rc, "ReadSymlink")()

	f, err := c.getFile(number)
	if err != nil {
		return "", err
	}
	size, err := f.Size()
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := f.Read(rc.FetchContext, buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}

// CreateSymlink creates a symlink named name under parent pointing at
// target.
func (c *Channel) CreateSymlink(rc RequestContext, parent uint64, name vfspath.Component, target string) (uint64, error) {
	defer c.traceOp(rc, "CreateSymlink")()

	dir, err := c.getTree(parent)
	if err != nil {
		return 0, err
	}
	number := c.inodes.AllocateInodeNumber()
	if err := dir.CreateChild(name, number, model.Symlink); err != nil {
		return 0, err
	}
	child := inode.NewFileInode(number, objectid.ID{}, model.BlobMetadata{}, nil, c.ovl, nil)
	if err := child.TruncateAndRun(rc.FetchContext, 0, func() error { return nil }); err != nil {
		return 0, err
	}
	if _, err := child.Write(rc.FetchContext, []byte(target), 0); err != nil {
		return 0, err
	}
	c.inodes.Insert(child)
	c.journal.RecordCreated(parentRelative(parent, name))
	return number, nil
}

// ForgetInode drops the kernel's last reference to number.
func (c *Channel) ForgetInode(rc RequestContext, number uint64, n int) {
	defer c.traceOp(rc, "ForgetInode")()

	in, ok := c.inodes.Get(number)
	if !ok {
		return
	}
	dropped := false
	var err error
	for i := 0; i < n; i++ {
		dropped, err = in.DecRef()
	}
	if err != nil {
		monofslog.Warnf("kernelchannel: ForgetInode %d: %v", number, err)
	}
	if dropped {
		c.inodes.Forget(number)
	}
}

// FlushFile and SyncFile are no-ops beyond their read/write path: every
// write already lands in the overlay synchronously, so there is no
// buffered state left to flush. Kept as named operations to mirror the
// teacher's fs.go surface, which kernel FUSE implementations are
// expected to expose even when they are trivial.
func (c *Channel) FlushFile(rc RequestContext, number uint64) error {
	defer c.traceOp(rc, "FlushFile")()
	_, err := c.getFile(number)
	return err
}

func (c *Channel) SyncFile(rc RequestContext, number uint64) error {
	defer c.traceOp(rc, "SyncFile")()
	_, err := c.getFile(number)
	return err
}

// parentRelative derives the journal path for a (parent, name) pair.
// The channel itself tracks no parent-to-path mapping; it journals the
// leaf name only, and relies on the caller (mount.Mount keeps the
// authoritative path index) to re-home the delta under the parent's
// current path before the delta is consumed downstream.
func parentRelative(parent uint64, name vfspath.Component) vfspath.Relative {
	rel, err := vfspath.NewRelative(string(name))
	if err != nil {
		return vfspath.Relative{}
	}
	return rel
}

// errno values local to this package for the same portability reason
// inode/dir.go keeps its own: a future Windows projected-namespace
// kernel channel has no syscall.Errno to map into.
const (
	errnoENOENT    = 2
	errnoEISDIR    = 21
	errnoENOTDIR   = 20
	errnoESTALE    = 116
)
