// Package localstore is monofs's persistent key-value cache: a single
// embedded bbolt database whose buckets act as the named "column
// families" spec.md §4.2 requires (Blob, BlobMetadata, Tree, plus
// families owned by the overlay and inode map).
//
// Grounded on the bbolt usage in
// other_examples/6fb4c2b5_Auriora-OneMount__internal-fs-cache.go.go:
// the retry-with-backoff bolt.Open loop (a local cache database can
// be transiently locked by another process during a crash-restart
// race) and the "one bucket per concern" layout, adapted from
// OneMount's ad hoc bucket vars to a typed Family enumeration.
package localstore

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/monofs/monofs/monoerr"
)

// Family names a column family: a bbolt bucket holding one kind of
// record.
type Family string

const (
	FamilyBlob         Family = "blob"
	FamilyBlobMetadata Family = "blob_metadata"
	FamilyTree         Family = "tree"
	FamilyOverlayMeta  Family = "overlay_meta"
	FamilyInodeMap     Family = "inode_map"
)

var allFamilies = []Family{
	FamilyBlob, FamilyBlobMetadata, FamilyTree, FamilyOverlayMeta, FamilyInodeMap,
}

// Store is a persistent key-value cache backed by a single bbolt
// database file.
type Store struct {
	db *bolt.DB
}

// Options configures how a Store opens its backing database.
type Options struct {
	MaxOpenRetries  int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	OpenTimeout     time.Duration
}

// DefaultOptions mirrors the retry/backoff schedule used to tolerate
// a database transiently held by another process during a
// crash-restart race.
func DefaultOptions() Options {
	return Options{
		MaxOpenRetries: 10,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OpenTimeout:    10 * time.Second,
	}
}

// Open opens (creating if necessary) the bbolt database at path,
// retrying with exponential backoff if another process holds its
// file lock.
func Open(path string, opts Options) (*Store, error) {
	if opts.MaxOpenRetries <= 0 {
		opts = DefaultOptions()
	}

	var db *bolt.DB
	var err error

	for attempt := 0; attempt < opts.MaxOpenRetries; attempt++ {
		db, err = bolt.Open(path, 0600, &bolt.Options{
			Timeout:        opts.OpenTimeout,
			NoFreelistSync: true,
		})
		if err == nil {
			break
		}

		if attempt == opts.MaxOpenRetries-1 {
			return nil, fmt.Errorf("localstore: open %s (is it already in use by another mount?): %w", path, err)
		}

		backoff := opts.InitialBackoff * time.Duration(uint64(1)<<uint(attempt))
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
		time.Sleep(backoff)
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, f := range allFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(f)); err != nil {
				return fmt.Errorf("create bucket %s: %w", f, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: initializing families: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreResult is the result of a Get: either a value slice copied out
// of the store (Found) or an absent key.
type StoreResult struct {
	Value []byte
	Found bool
}

// Get reads key from family. The returned slice, if Found, is a copy
// made inside the read transaction, so the caller owns it.
func (s *Store) Get(family Family, key []byte) (StoreResult, error) {
	var result StoreResult
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return fmt.Errorf("localstore: unknown family %s", family)
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		result = StoreResult{Value: append([]byte(nil), v...), Found: true}
		return nil
	})
	if err != nil {
		return StoreResult{}, monoerr.Transient("localstore.Get", err)
	}
	return result, nil
}

// Put durably writes key/value to family in a single-operation write
// batch.
func (s *Store) Put(family Family, key, value []byte) error {
	b, err := s.BeginWrite(0)
	if err != nil {
		return err
	}
	b.Put(family, key, value)
	return b.Flush()
}

// ClearKeySpace atomically drops every key in family, used during
// recovery and testing (spec.md §4.2).
func (s *Store) ClearKeySpace(family Family) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(family)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(family))
		return err
	})
	if err != nil {
		return monoerr.Transient("localstore.ClearKeySpace", err)
	}
	return nil
}
