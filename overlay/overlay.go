// Package overlay implements local storage for materialized file and
// directory contents, indexed by inode number, per spec.md §4.6.
//
// Two backends satisfy Overlay: fsoverlay (one file per materialized
// inode, sharded into subdirectories) and dboverlay (a single bbolt
// database reusing localstore's column-family concept). Both are
// grounded on the teacher's lease.FileLeaser temp-file-per-inode
// design (fs/fs.go's ServerConfig.TempDir/TempDirLimitNumFiles),
// generalized from "scratch space for one open GCS object" to
// "durable storage surviving the inode's full materialized lifetime".
package overlay

import "github.com/monofs/monofs/vfspath"

// DirEntry is one entry of a materialized directory payload.
type DirEntry struct {
	Name          vfspath.Component
	Mode          uint32
	SourceHash    []byte // sha1 of the backing blob this entry was sourced from, if any
	Materialized  bool
}

// Overlay is the durable local store for materialized inode contents,
// per spec.md §4.6.
type Overlay interface {
	// SaveOverlayDir replaces the directory payload for inodeNumber
	// atomically with respect to concurrent readers.
	SaveOverlayDir(inodeNumber uint64, entries []DirEntry) error

	// LoadOverlayDir returns the directory payload for inodeNumber, or
	// found=false if none is stored.
	LoadOverlayDir(inodeNumber uint64) (entries []DirEntry, found bool, err error)

	// SaveOverlayFile replaces the file payload for inodeNumber. sha1,
	// if non-nil, is persisted as a sidecar so callers can skip
	// recomputing it when the stored bytes are known to equal a source
	// blob's contents.
	SaveOverlayFile(inodeNumber uint64, contents []byte, sha1 []byte) error

	// LoadOverlayFile returns the file payload and its sidecar hash (nil
	// if none was recorded).
	LoadOverlayFile(inodeNumber uint64) (contents []byte, sha1 []byte, found bool, err error)

	// RemoveOverlayData removes both the file and directory payloads for
	// inodeNumber, if present.
	RemoveOverlayData(inodeNumber uint64) error

	// UpdateUsedInodeNumber persists a high watermark so inode number
	// allocation can resume correctly after an unclean shutdown.
	UpdateUsedInodeNumber(n uint64) error

	// Close flushes nextInodeNumber as the final watermark and releases
	// any held resources.
	Close(nextInodeNumber uint64) error
}
