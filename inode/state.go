// Package inode implements the file and directory inode state
// machines of spec.md §4.4/§4.5.
//
// FileInode generalizes the teacher's gcsproxy.MutableContent
// (gcsproxy/mutable_content.go), whose invariant "(initialContent ==
// nil) != (readWriteLease == nil)" is exactly the dirty/clean split
// this package generalizes into three explicit states:
// BLOB_NOT_LOADING, BLOB_LOADING and MATERIALIZED_IN_OVERLAY. The
// extra LOADING state, and the one-shot latch shared by its waiters,
// have no direct teacher analogue; the latch is the standard Go
// "close a channel to broadcast" idiom (see DESIGN.md).
package inode

import (
	"fmt"
	"sync"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay"
)

// fileState is the tagged union of spec.md §4.4.
type fileState int

const (
	stateBlobNotLoading fileState = iota
	stateBlobLoading
	stateMaterializedInOverlay
)

func (s fileState) String() string {
	switch s {
	case stateBlobNotLoading:
		return "BLOB_NOT_LOADING"
	case stateBlobLoading:
		return "BLOB_LOADING"
	case stateMaterializedInOverlay:
		return "MATERIALIZED_IN_OVERLAY"
	default:
		return "UNKNOWN"
	}
}

// loadLatch is the one-shot result a BLOB_LOADING state hands to every
// waiter that observed it, fulfilled exactly once via a closed
// channel.
type loadLatch struct {
	done      chan struct{}
	once      sync.Once
	blob      model.Blob
	err       error
	truncated bool // a concurrent truncate materialized the inode during the load
}

func newLoadLatch() *loadLatch {
	return &loadLatch{done: make(chan struct{})}
}

func (l *loadLatch) fulfill(blob model.Blob, err error) {
	l.once.Do(func() {
		l.blob = blob
		l.err = err
		close(l.done)
	})
}

func (l *loadLatch) fulfillTruncated() {
	l.once.Do(func() {
		l.truncated = true
		close(l.done)
	})
}

func (l *loadLatch) wait() (model.Blob, error, bool) {
	<-l.done
	return l.blob, l.err, l.truncated
}

// FileInode is the state machine of spec.md §4.4: a file backed by a
// source blob until its first write, at which point its contents live
// in the overlay for the rest of its life.
type FileInode struct {
	mu sync.Mutex

	number uint64
	store  *objectstore.Store
	ovl    overlay.Overlay

	state   fileState
	blobID  objectid.ID
	meta    model.BlobMetadata // valid whenever state != stateMaterializedInOverlay
	latch   *loadLatch
	onMaterialize func() // notifies the parent directory's materialization flag

	refCount int32
	unlinked bool
}

// NewFileInode constructs a file inode sourced from blobID, not yet
// materialized.
func NewFileInode(number uint64, blobID objectid.ID, meta model.BlobMetadata, store *objectstore.Store, ovl overlay.Overlay, onMaterialize func()) *FileInode {
	return &FileInode{
		number:        number,
		store:         store,
		ovl:           ovl,
		blobID:        blobID,
		meta:          meta,
		onMaterialize: onMaterialize,
		refCount:      1,
	}
}

// Number returns the inode number.
func (f *FileInode) Number() uint64 { return f.number }

// IsMaterialized reports whether the inode currently has overlay
// contents (for directory-entry materialization bookkeeping).
func (f *FileInode) IsMaterialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == stateMaterializedInOverlay
}

// Size returns the file's current size without necessarily
// materializing it: served from blob metadata while unmaterialized,
// from the overlay payload length otherwise.
func (f *FileInode) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stateMaterializedInOverlay {
		return f.meta.Size, nil
	}
	contents, _, found, err := f.ovl.LoadOverlayFile(f.number)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, monoerr.Invariant("FileInode.Size", fmt.Errorf("inode %d materialized but overlay has no payload", f.number))
	}
	return int64(len(contents)), nil
}

// Sha1 returns the file's content hash without necessarily
// materializing it.
func (f *FileInode) Sha1() (objectid.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stateMaterializedInOverlay {
		return f.meta.SHA1, nil
	}
	contents, sha1, found, err := f.ovl.LoadOverlayFile(f.number)
	if err != nil {
		return objectid.ID{}, err
	}
	if !found {
		return objectid.ID{}, monoerr.Invariant("FileInode.Sha1", fmt.Errorf("inode %d materialized but overlay has no payload", f.number))
	}
	if sha1 != nil {
		return objectid.FromBytes(sha1), nil
	}
	return objectid.Hash(contents), nil
}

// runWhileDataLoaded is the primitive for read operations (spec.md
// §4.4): it guarantees cb runs with either a materialized inode
// (materialized=true, the overlay payload is the thing to read) or a
// source blob in hand (materialized=false).
func (f *FileInode) runWhileDataLoaded(fc backingstore.FetchContext, cb func(materialized bool, blob model.Blob) error) error {
	for {
		f.mu.Lock()
		switch f.state {
		case stateMaterializedInOverlay:
			f.mu.Unlock()
			return cb(true, model.Blob{})

		case stateBlobLoading:
			latch := f.latch
			f.mu.Unlock()
			blob, err, truncated := latch.wait()
			if truncated {
				continue // the state is now MATERIALIZED_IN_OVERLAY; re-dispatch
			}
			if err != nil {
				return err
			}
			return cb(false, blob)

		case stateBlobNotLoading:
			latch := newLoadLatch()
			f.latch = latch
			f.state = stateBlobLoading
			blobID := f.blobID
			f.mu.Unlock()

			blob, ferr := f.store.GetBlob(fc, blobID)

			f.mu.Lock()
			if f.state == stateMaterializedInOverlay {
				// A concurrent truncate already fulfilled this latch and
				// moved the state; our own fetch result is now moot.
				f.mu.Unlock()
				continue
			}
			f.latch = nil
			f.state = stateBlobNotLoading
			if ferr == nil {
				f.meta = blob.Metadata()
			}
			f.mu.Unlock()

			latch.fulfill(blob, ferr)
			if ferr != nil {
				return ferr
			}
			return cb(false, blob)

		default:
			f.mu.Unlock()
			return monoerr.Invariant("FileInode.runWhileDataLoaded", fmt.Errorf("inode %d in unknown state %v", f.number, f.state))
		}
	}
}

// materializeFromBlob writes blob's contents into the overlay and
// transitions to MATERIALIZED_IN_OVERLAY. Caller must hold f.mu.
func (f *FileInode) materializeFromBlob(blob model.Blob) error {
	sha1 := blob.Metadata().SHA1
	if err := f.ovl.SaveOverlayFile(f.number, blob.Contents, sha1.Bytes()); err != nil {
		return err
	}
	f.state = stateMaterializedInOverlay
	if f.onMaterialize != nil {
		f.onMaterialize()
	}
	return nil
}

// runWhileMaterialized is the primitive for write operations (spec.md
// §4.4): on first entry from a non-materialized state it loads the
// blob (if needed), seeds the overlay from it, and transitions to
// MATERIALIZED_IN_OVERLAY before running cb.
func (f *FileInode) runWhileMaterialized(fc backingstore.FetchContext, cb func() error) error {
	f.mu.Lock()
	if f.state == stateMaterializedInOverlay {
		f.mu.Unlock()
		return cb()
	}
	f.mu.Unlock()

	return f.runWhileDataLoaded(fc, func(materialized bool, blob model.Blob) error {
		f.mu.Lock()
		if f.state != stateMaterializedInOverlay {
			if err := f.materializeFromBlob(blob); err != nil {
				f.mu.Unlock()
				return err
			}
		}
		f.mu.Unlock()
		return cb()
	})
}

// TruncateAndRun implements spec.md §4.4's truncateAndRun: truncating
// to zero skips the blob load entirely, including waking any
// in-flight loader with the truncated sentinel so its waiters restart
// from MATERIALIZED_IN_OVERLAY.
func (f *FileInode) TruncateAndRun(fc backingstore.FetchContext, newSize int64, cb func() error) error {
	if newSize != 0 {
		return f.runWhileMaterialized(fc, func() error { return f.truncateMaterialized(newSize, cb) })
	}

	f.mu.Lock()
	switch f.state {
	case stateMaterializedInOverlay:
		f.mu.Unlock()
		return f.truncateMaterialized(0, cb)

	case stateBlobLoading:
		latch := f.latch
		f.latch = nil
		if err := f.ovl.SaveOverlayFile(f.number, nil, nil); err != nil {
			f.mu.Unlock()
			return err
		}
		f.state = stateMaterializedInOverlay
		if f.onMaterialize != nil {
			f.onMaterialize()
		}
		f.mu.Unlock()
		latch.fulfillTruncated()
		return cb()

	default: // stateBlobNotLoading
		if err := f.ovl.SaveOverlayFile(f.number, nil, nil); err != nil {
			f.mu.Unlock()
			return err
		}
		f.state = stateMaterializedInOverlay
		if f.onMaterialize != nil {
			f.onMaterialize()
		}
		f.mu.Unlock()
		return cb()
	}
}

func (f *FileInode) truncateMaterialized(newSize int64, cb func() error) error {
	f.mu.Lock()
	contents, _, found, err := f.ovl.LoadOverlayFile(f.number)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	if !found {
		contents = nil
	}
	contents = resizeBytes(contents, newSize)
	if err := f.ovl.SaveOverlayFile(f.number, contents, nil); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return cb()
}

func resizeBytes(b []byte, size int64) []byte {
	if int64(len(b)) == size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// Read reads up to len(p) bytes at off, loading the source blob if
// needed; it never materializes the inode.
func (f *FileInode) Read(fc backingstore.FetchContext, p []byte, off int64) (int, error) {
	var n int
	err := f.runWhileDataLoaded(fc, func(materialized bool, blob model.Blob) error {
		var src []byte
		if materialized {
			contents, _, found, lerr := f.ovl.LoadOverlayFile(f.number)
			if lerr != nil {
				return lerr
			}
			if found {
				src = contents
			}
		} else {
			src = blob.Contents
		}
		if off >= int64(len(src)) {
			n = 0
			return nil
		}
		n = copy(p, src[off:])
		return nil
	})
	return n, err
}

// Write writes p at off, materializing on first entry.
func (f *FileInode) Write(fc backingstore.FetchContext, p []byte, off int64) (int, error) {
	var n int
	err := f.runWhileMaterialized(fc, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		contents, _, found, lerr := f.ovl.LoadOverlayFile(f.number)
		if lerr != nil {
			return lerr
		}
		if !found {
			contents = nil
		}
		needed := off + int64(len(p))
		if needed > int64(len(contents)) {
			contents = resizeBytes(contents, needed)
		}
		n = copy(contents[off:], p)
		return f.ovl.SaveOverlayFile(f.number, contents, nil)
	})
	return n, err
}

// IncRef/DecRef implement the reference counting spec.md §4.5
// describes for unlinked-but-open files: the overlay entry is removed
// only once the count reaches zero.
func (f *FileInode) IncRef() {
	f.mu.Lock()
	f.refCount++
	f.mu.Unlock()
}

// DecRef decrements the reference count, removing the overlay entry
// (if the inode was unlinked) once it reaches zero. Returns true if
// the inode is now unreferenced and should be dropped from the inode
// map.
func (f *FileInode) DecRef() (bool, error) {
	f.mu.Lock()
	f.refCount--
	count := f.refCount
	unlinked := f.unlinked
	f.mu.Unlock()

	if count > 0 {
		return false, nil
	}
	if unlinked {
		if err := f.ovl.RemoveOverlayData(f.number); err != nil {
			return true, err
		}
	}
	return true, nil
}

// MarkUnlinked records that this inode's last directory entry has
// been removed; its overlay data is dropped once DecRef reaches zero.
func (f *FileInode) MarkUnlinked() {
	f.mu.Lock()
	f.unlinked = true
	f.mu.Unlock()
}
