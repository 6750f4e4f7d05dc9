// Package dboverlay is a single-file bbolt-backed overlay.Overlay, for
// hosts whose filesystem does not support every POSIX operation
// fsoverlay relies on (spec.md §4.6). It reuses localstore's
// column-family concept (one bolt bucket per logical table) rather
// than localstore's Store type directly, since dboverlay's bucket set
// (directories, files, sha1 sidecars, watermark) is specific to
// overlay storage.
package dboverlay

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/overlay"
)

var (
	bucketDirs      = []byte("overlay_dirs")
	bucketFiles     = []byte("overlay_files")
	bucketFileSha1  = []byte("overlay_file_sha1")
	bucketWatermark = []byte("overlay_watermark")
)

var watermarkKey = []byte("next_inode_number")

var allBuckets = [][]byte{bucketDirs, bucketFiles, bucketFileSha1, bucketWatermark}

// Options configures the retry-with-backoff open behavior this type
// shares with localstore.Open, since both wrap bbolt's exclusive file
// lock.
type Options struct {
	MaxOpenRetries int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OpenTimeout    time.Duration
}

// DefaultOptions returns a shorter open-retry schedule than
// localstore.DefaultOptions: 5 retries, 50ms initial and 2s maximum
// backoff, and a 1s open timeout.
func DefaultOptions() Options {
	return Options{
		MaxOpenRetries: 5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		OpenTimeout:    time.Second,
	}
}

// Overlay is a bbolt-backed overlay.Overlay.
type Overlay struct {
	db *bolt.DB
}

// Open opens (creating if absent) a dboverlay database at path.
func Open(path string, opts Options) (*Overlay, error) {
	var db *bolt.DB
	var err error

	backoff := opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.OpenTimeout})
		if err == nil {
			break
		}
		if attempt >= opts.MaxOpenRetries {
			return nil, monoerr.Transient("dboverlay.Open", fmt.Errorf("open %s after %d attempts: %w", path, attempt+1, err))
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, monoerr.Transient("dboverlay.Open", err)
	}

	return &Overlay{db: db}, nil
}

func inodeKey(inodeNumber uint64) []byte {
	return []byte(fmt.Sprintf("%020d", inodeNumber))
}

// SaveOverlayDir implements overlay.Overlay.
func (o *Overlay) SaveOverlayDir(inodeNumber uint64, entries []overlay.DirEntry) error {
	data := overlay.MarshalDirEntries(entries)
	err := o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirs).Put(inodeKey(inodeNumber), data)
	})
	if err != nil {
		return monoerr.Transient("dboverlay.SaveOverlayDir", err)
	}
	return nil
}

// LoadOverlayDir implements overlay.Overlay.
func (o *Overlay) LoadOverlayDir(inodeNumber uint64) ([]overlay.DirEntry, bool, error) {
	var data []byte
	err := o.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDirs).Get(inodeKey(inodeNumber)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, monoerr.Transient("dboverlay.LoadOverlayDir", err)
	}
	if data == nil {
		return nil, false, nil
	}
	entries, err := overlay.UnmarshalDirEntries(data)
	if err != nil {
		return nil, false, fmt.Errorf("dboverlay: inode %d: %w", inodeNumber, err)
	}
	return entries, true, nil
}

// SaveOverlayFile implements overlay.Overlay.
func (o *Overlay) SaveOverlayFile(inodeNumber uint64, contents []byte, sha1 []byte) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFiles).Put(inodeKey(inodeNumber), contents); err != nil {
			return err
		}
		sha1Bucket := tx.Bucket(bucketFileSha1)
		if sha1 == nil {
			return sha1Bucket.Delete(inodeKey(inodeNumber))
		}
		return sha1Bucket.Put(inodeKey(inodeNumber), sha1)
	})
	if err != nil {
		return monoerr.Transient("dboverlay.SaveOverlayFile", err)
	}
	return nil
}

// LoadOverlayFile implements overlay.Overlay.
func (o *Overlay) LoadOverlayFile(inodeNumber uint64) ([]byte, []byte, bool, error) {
	var contents, sha1 []byte
	var found bool
	err := o.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get(inodeKey(inodeNumber))
		if v == nil {
			return nil
		}
		found = true
		contents = append([]byte(nil), v...)
		if s := tx.Bucket(bucketFileSha1).Get(inodeKey(inodeNumber)); s != nil {
			sha1 = append([]byte(nil), s...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, monoerr.Transient("dboverlay.LoadOverlayFile", err)
	}
	return contents, sha1, found, nil
}

// RemoveOverlayData implements overlay.Overlay.
func (o *Overlay) RemoveOverlayData(inodeNumber uint64) error {
	key := inodeKey(inodeNumber)
	err := o.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketDirs).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketFiles).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketFileSha1).Delete(key)
	})
	if err != nil {
		return monoerr.Transient("dboverlay.RemoveOverlayData", err)
	}
	return nil
}

// UpdateUsedInodeNumber implements overlay.Overlay.
func (o *Overlay) UpdateUsedInodeNumber(n uint64) error {
	err := o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWatermark).Put(watermarkKey, inodeKey(n))
	})
	if err != nil {
		return monoerr.Transient("dboverlay.UpdateUsedInodeNumber", err)
	}
	return nil
}

// Watermark returns the persisted high watermark, or 0 if none has
// ever been written.
func (o *Overlay) Watermark() (uint64, error) {
	var n uint64
	err := o.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketWatermark).Get(watermarkKey)
		if v == nil {
			return nil
		}
		_, err := fmt.Sscanf(string(v), "%d", &n)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("dboverlay: corrupt watermark: %w", err)
	}
	return n, nil
}

// Close implements overlay.Overlay.
func (o *Overlay) Close(nextInodeNumber uint64) error {
	if err := o.UpdateUsedInodeNumber(nextInodeNumber); err != nil {
		return err
	}
	return o.db.Close()
}

var _ overlay.Overlay = (*Overlay)(nil)
