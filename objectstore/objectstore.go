// Package objectstore implements the three-tier read pipeline in
// front of the backing store: an in-memory LRU, a local persistent
// store, and the backing store itself, per spec.md §4.3.
//
// Grounded on the teacher's internal/lrucache (shape reconstructed
// from its tests, see lru.go) for the in-memory tier, and on
// gcsx-style metrics/logging instrumentation (common/otel_metrics.go,
// gcsproxy/logger.go) for the fetch-heavy accounting this package
// adds around every tier transition.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/clock"
	"github.com/monofs/monofs/localstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/monometrics"
	"github.com/monofs/monofs/objectid"
)

// Tier identifies which layer of the read pipeline served a request,
// for metrics and logging.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierLocal   Tier = "local"
	TierBacking Tier = "backing"
)

// Options configures a Store's cache sizes and fetch-heavy
// thresholds.
type Options struct {
	TreeCacheBytes     uint64
	BlobCacheBytes     uint64
	MetadataCacheBytes uint64

	// DeprioritizeAfterFetches is the number of backing-store fetches
	// after which a process's subsequent fetches are deprioritized.
	// Zero disables deprioritization.
	DeprioritizeAfterFetches int64

	// LogEveryNFetches triggers a structured log event describing a
	// process's cumulative fetch count.
	LogEveryNFetches int64

	Metrics monometrics.MetricHandle
	Clock   clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Metrics == nil {
		o.Metrics = monometrics.NewNoop()
	}
	if o.Clock == nil {
		o.Clock = clock.SystemClock{}
	}
	return o
}

// Store is the shared, thread-safe read pipeline facade consumed by
// inodes.
type Store struct {
	backing backingstore.Store
	local   *localstore.Store

	trees *sizedLRU[model.Tree]
	blobs *sizedLRU[model.Blob]
	meta  *sizedLRU[model.BlobMetadata]

	tracker *fetchTracker
	metrics monometrics.MetricHandle
	clock   clock.Clock
}

func treeSize(t model.Tree) uint64 {
	var n uint64
	for _, e := range t.Entries {
		n += uint64(len(e.Name)) + uint64(objectid.Size) + 1
	}
	return n + 8
}

func blobSize(b model.Blob) uint64 { return uint64(len(b.Contents)) }

func metaSize(model.BlobMetadata) uint64 { return 32 }

// New builds a Store in front of backing and local.
func New(backing backingstore.Store, local *localstore.Store, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		backing: backing,
		local:   local,
		trees:   newSizedLRU[model.Tree](opts.TreeCacheBytes, treeSize),
		blobs:   newSizedLRU[model.Blob](opts.BlobCacheBytes, blobSize),
		meta:    newSizedLRU[model.BlobMetadata](opts.MetadataCacheBytes, metaSize),
		tracker: newFetchTracker(opts.DeprioritizeAfterFetches, opts.LogEveryNFetches),
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}
}

func (s *Store) recordRead(tier Tier, nbytes int64, start time.Time) {
	ctx := context.Background()
	attrs := []monometrics.Attr{{Key: monometrics.TierKey, Value: string(tier)}}
	s.metrics.ObjectStoreReadCount(ctx, 1, attrs)
	s.metrics.ObjectStoreReadBytesCount(ctx, nbytes, attrs)
	s.metrics.ObjectStoreReadLatency(ctx, s.clock.Now().Sub(start), attrs)
}

func (s *Store) maybeDeprioritize(fc backingstore.FetchContext) backingstore.FetchContext {
	if s.tracker.isFetchHeavy(fc.Pid) {
		return fc.Deprioritize()
	}
	return fc
}

// GetTree returns the tree named by id, consulting the in-memory
// cache, then the local store, then the backing store.
func (s *Store) GetTree(fc backingstore.FetchContext, id objectid.ID) (model.Tree, error) {
	start := s.clock.Now()
	key := id.String()

	if t, ok := s.trees.LookUp(key); ok {
		s.recordRead(TierMemory, 0, start)
		return t, nil
	}

	if res, err := s.local.Get(localstore.FamilyTree, id.Bytes()); err == nil && res.Found {
		t, uerr := model.UnmarshalTree(res.Value)
		if uerr != nil {
			return model.Tree{}, monoerr.DataCorruption("objectstore.GetTree", id, uerr)
		}
		s.trees.Insert(key, t)
		s.recordRead(TierLocal, int64(len(res.Value)), start)
		return t, nil
	}

	s.tracker.recordFetch(fc.Pid)
	fc = s.maybeDeprioritize(fc)

	t, err := s.backing.GetTree(fc, id)
	if err != nil {
		return model.Tree{}, err
	}

	data := t.Marshal()
	if err := s.local.Put(localstore.FamilyTree, id.Bytes(), data); err != nil {
		monoerr.Transient("objectstore.GetTree.cache", err)
	}
	s.trees.Insert(key, t)
	s.recordRead(TierBacking, int64(len(data)), start)
	return t, nil
}

// GetRootTree returns the tree identified as the backing store's
// current root.
func (s *Store) GetRootTree(fc backingstore.FetchContext, rootID objectid.ID) (model.Tree, error) {
	return s.GetTree(fc, rootID)
}

// GetBlob returns the blob named by id.
func (s *Store) GetBlob(fc backingstore.FetchContext, id objectid.ID) (model.Blob, error) {
	start := s.clock.Now()
	key := id.String()

	if b, ok := s.blobs.LookUp(key); ok {
		s.recordRead(TierMemory, int64(len(b.Contents)), start)
		return b, nil
	}

	if res, err := s.local.Get(localstore.FamilyBlob, id.Bytes()); err == nil && res.Found {
		if verr := id.Verify(res.Value); verr != nil {
			return model.Blob{}, monoerr.DataCorruption("objectstore.GetBlob", id, verr)
		}
		b := model.Blob{ID: id, Contents: res.Value}
		s.blobs.Insert(key, b)
		s.recordRead(TierLocal, int64(len(res.Value)), start)
		return b, nil
	}

	s.tracker.recordFetch(fc.Pid)
	fc = s.maybeDeprioritize(fc)

	b, err := s.backing.GetBlob(fc, id)
	if err != nil {
		return model.Blob{}, err
	}

	s.cacheBlobAndMetadata(b)
	s.recordRead(TierBacking, int64(len(b.Contents)), start)
	return b, nil
}

func (s *Store) cacheBlobAndMetadata(b model.Blob) {
	if err := s.local.Put(localstore.FamilyBlob, b.ID.Bytes(), b.Contents); err != nil {
		monoerr.Transient("objectstore.cacheBlob", err)
	}
	s.blobs.Insert(b.ID.String(), b)

	md := b.Metadata()
	if err := s.local.Put(localstore.FamilyBlobMetadata, b.ID.Bytes(), marshalMetadata(md)); err != nil {
		monoerr.Transient("objectstore.cacheBlobMetadata", err)
	}
	s.meta.Insert(b.ID.String(), md)
}

// GetBlobMetadata returns the cheap-to-answer (sha1, size) pair for a
// blob without necessarily materializing its contents.
func (s *Store) GetBlobMetadata(fc backingstore.FetchContext, id objectid.ID) (model.BlobMetadata, error) {
	key := id.String()
	if md, ok := s.meta.LookUp(key); ok {
		return md, nil
	}

	if res, err := s.local.Get(localstore.FamilyBlobMetadata, id.Bytes()); err == nil && res.Found {
		md, uerr := unmarshalMetadata(res.Value)
		if uerr != nil {
			return model.BlobMetadata{}, monoerr.DataCorruption("objectstore.GetBlobMetadata", id, uerr)
		}
		s.meta.Insert(key, md)
		return md, nil
	}

	b, err := s.GetBlob(fc, id)
	if err != nil {
		return model.BlobMetadata{}, err
	}
	return b.Metadata(), nil
}

// GetBlobSha1 returns just the content hash of a blob.
func (s *Store) GetBlobSha1(fc backingstore.FetchContext, id objectid.ID) (objectid.ID, error) {
	md, err := s.GetBlobMetadata(fc, id)
	if err != nil {
		return objectid.ID{}, err
	}
	return md.SHA1, nil
}

// GetBlobSize returns just the size of a blob.
func (s *Store) GetBlobSize(fc backingstore.FetchContext, id objectid.ID) (int64, error) {
	md, err := s.GetBlobMetadata(fc, id)
	if err != nil {
		return 0, err
	}
	return md.Size, nil
}

// PrefetchBlobs asks the backing store to begin fetching ids without
// blocking.
func (s *Store) PrefetchBlobs(fc backingstore.FetchContext, ids []objectid.ID) {
	fc = s.maybeDeprioritize(fc)
	s.backing.PrefetchBlobs(fc, ids)
}

func marshalMetadata(md model.BlobMetadata) []byte {
	return []byte(fmt.Sprintf("%s:%d", md.SHA1.String(), md.Size))
}

func unmarshalMetadata(data []byte) (model.BlobMetadata, error) {
	var hexID string
	var size int64
	if _, err := fmt.Sscanf(string(data), "%40s:%d", &hexID, &size); err != nil {
		return model.BlobMetadata{}, err
	}
	id, err := objectid.FromHex(hexID)
	if err != nil {
		return model.BlobMetadata{}, err
	}
	return model.BlobMetadata{SHA1: id, Size: size}, nil
}
