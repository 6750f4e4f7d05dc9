// Package fsoverlay is a plain-filesystem-backed overlay.Overlay: one
// file per materialized inode, arranged in sharded subdirectories
// indexed by inode number (spec.md §4.6), grounded on the teacher's
// lease.FileLeaser temp-file-per-inode design (fs/fs.go's
// ServerConfig.TempDir/TempDirLimitNumFiles), generalized from
// scratch space for one open GCS object to durable per-inode storage.
package fsoverlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/monofs/monofs/overlay"
)

// shardBits controls how inode numbers are bucketed into
// subdirectories, keeping any one directory from growing to hold
// every materialized inode in the working copy.
const shardBits = 8

func shardDir(base string, inodeNumber uint64) string {
	shard := inodeNumber & (1<<shardBits - 1)
	return filepath.Join(base, fmt.Sprintf("%02x", shard))
}

func dirPath(base string, inodeNumber uint64) string {
	return filepath.Join(shardDir(base, inodeNumber), fmt.Sprintf("%d.dir", inodeNumber))
}

func filePath(base string, inodeNumber uint64) string {
	return filepath.Join(shardDir(base, inodeNumber), fmt.Sprintf("%d.data", inodeNumber))
}

func sha1Path(base string, inodeNumber uint64) string {
	return filepath.Join(shardDir(base, inodeNumber), fmt.Sprintf("%d.sha1", inodeNumber))
}

func watermarkPath(base string) string {
	return filepath.Join(base, "watermark")
}

// Overlay materializes inode contents as regular files under a base
// directory. A per-inode mutex (sharded by inodeNumber%len(locks))
// serializes the single-writer/many-reader access spec.md §4.6
// requires without needing one lock per live inode.
type Overlay struct {
	base  string
	locks [256]sync.RWMutex
}

// New opens (creating if absent) an fsoverlay rooted at base.
func New(base string) (*Overlay, error) {
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, fmt.Errorf("fsoverlay: mkdir %s: %w", base, err)
	}
	for shard := 0; shard < 1<<shardBits; shard++ {
		dir := filepath.Join(base, fmt.Sprintf("%02x", shard))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("fsoverlay: mkdir shard %s: %w", dir, err)
		}
	}
	return &Overlay{base: base}, nil
}

func (o *Overlay) lockFor(inodeNumber uint64) *sync.RWMutex {
	return &o.locks[inodeNumber%uint64(len(o.locks))]
}

// SaveOverlayDir implements overlay.Overlay. The payload is written to
// a temp file in the same shard directory and renamed into place, so
// concurrent readers never observe a partially written payload.
func (o *Overlay) SaveOverlayDir(inodeNumber uint64, entries []overlay.DirEntry) error {
	lock := o.lockFor(inodeNumber)
	lock.Lock()
	defer lock.Unlock()

	return atomicWriteFile(dirPath(o.base, inodeNumber), overlay.MarshalDirEntries(entries))
}

// LoadOverlayDir implements overlay.Overlay.
func (o *Overlay) LoadOverlayDir(inodeNumber uint64) ([]overlay.DirEntry, bool, error) {
	lock := o.lockFor(inodeNumber)
	lock.RLock()
	defer lock.RUnlock()

	data, found, err := readFileIfExists(dirPath(o.base, inodeNumber))
	if err != nil || !found {
		return nil, found, err
	}
	entries, err := overlay.UnmarshalDirEntries(data)
	if err != nil {
		return nil, false, fmt.Errorf("fsoverlay: inode %d: %w", inodeNumber, err)
	}
	return entries, true, nil
}

// SaveOverlayFile implements overlay.Overlay.
func (o *Overlay) SaveOverlayFile(inodeNumber uint64, contents []byte, sha1 []byte) error {
	lock := o.lockFor(inodeNumber)
	lock.Lock()
	defer lock.Unlock()

	if err := atomicWriteFile(filePath(o.base, inodeNumber), contents); err != nil {
		return err
	}
	if sha1 == nil {
		_ = os.Remove(sha1Path(o.base, inodeNumber))
		return nil
	}
	return atomicWriteFile(sha1Path(o.base, inodeNumber), sha1)
}

// LoadOverlayFile implements overlay.Overlay.
func (o *Overlay) LoadOverlayFile(inodeNumber uint64) ([]byte, []byte, bool, error) {
	lock := o.lockFor(inodeNumber)
	lock.RLock()
	defer lock.RUnlock()

	contents, found, err := readFileIfExists(filePath(o.base, inodeNumber))
	if err != nil || !found {
		return nil, nil, found, err
	}
	sha1, _, err := readFileIfExists(sha1Path(o.base, inodeNumber))
	if err != nil {
		return nil, nil, false, err
	}
	return contents, sha1, true, nil
}

// RemoveOverlayData implements overlay.Overlay.
func (o *Overlay) RemoveOverlayData(inodeNumber uint64) error {
	lock := o.lockFor(inodeNumber)
	lock.Lock()
	defer lock.Unlock()

	for _, p := range []string{dirPath(o.base, inodeNumber), filePath(o.base, inodeNumber), sha1Path(o.base, inodeNumber)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fsoverlay: remove %s: %w", p, err)
		}
	}
	return nil
}

// UpdateUsedInodeNumber implements overlay.Overlay.
func (o *Overlay) UpdateUsedInodeNumber(n uint64) error {
	return atomicWriteFile(watermarkPath(o.base), []byte(fmt.Sprintf("%d", n)))
}

// Close implements overlay.Overlay.
func (o *Overlay) Close(nextInodeNumber uint64) error {
	return o.UpdateUsedInodeNumber(nextInodeNumber)
}

// Watermark returns the persisted high watermark, or 0 if none has
// ever been written.
func (o *Overlay) Watermark() (uint64, error) {
	data, found, err := readFileIfExists(watermarkPath(o.base))
	if err != nil || !found {
		return 0, err
	}
	var n uint64
	if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil {
		return 0, fmt.Errorf("fsoverlay: corrupt watermark file: %w", err)
	}
	return n, nil
}

var _ overlay.Overlay = (*Overlay)(nil)
