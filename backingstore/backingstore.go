// Package backingstore defines the capability consumed by the object
// store to fetch trees and blobs that are absent from every local
// tier, per spec.md §4.1.
//
// Grounded on the teacher's gcs.Conn/gcs.Bucket split (gcs/gcs.go): a
// small, dependency-free capability interface that concrete transports
// implement. grpcstore supplies the production transport; localrepo
// supplies an in-memory transport for tests.
package backingstore

import (
	"context"

	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/objectid"
)

// Priority orders fetches competing for a deprioritized backing-store
// connection, per spec.md §4.3's fetch-heavy-process handling.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
)

// FetchContext carries the calling process's identity and priority
// alongside ctx, letting an implementation log per-process access and
// throttle fetch-heavy callers, per spec.md §4.1.
type FetchContext struct {
	context.Context

	// Pid identifies the process on whose behalf this fetch runs.
	Pid int32

	// Priority is lowered by ObjectStore.Deprioritize once Pid crosses
	// the fetch-heavy threshold (spec.md §4.3).
	Priority Priority
}

// Deprioritize returns a copy of fc with PriorityLow set. It is called
// by the object store, never by a BackingStore implementation.
func (fc FetchContext) Deprioritize() FetchContext {
	fc.Priority = PriorityLow
	return fc
}

// Store is the capability the object store fetches through on a
// local-tier miss. All operations may fail with a NotFound error
// (permanent, per spec.md §4.1) or a transient error. The object store
// does not retry transient errors; it returns them to its caller.
type Store interface {
	// GetRootTree fetches the tree identified as the backing store's
	// current root.
	GetRootTree(fc FetchContext, rootID objectid.ID) (model.Tree, error)

	// GetTree fetches the tree named by id.
	GetTree(fc FetchContext, id objectid.ID) (model.Tree, error)

	// GetBlob fetches the blob named by id.
	GetBlob(fc FetchContext, id objectid.ID) (model.Blob, error)

	// PrefetchBlobs requests the backing store begin fetching ids
	// without blocking for their completion; errors encountered during
	// prefetch are not surfaced to the caller.
	PrefetchBlobs(fc FetchContext, ids []objectid.ID)
}
