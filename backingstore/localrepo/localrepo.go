// Package localrepo is an in-memory backingstore.Store used by tests
// and local development mounts that have no real backing-store server
// to talk to — the monofs analogue of handing fstesting a canned
// bucket contents map instead of a live GCS connection.
package localrepo

import (
	"sync"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
)

// Repo is a fixed, in-memory set of trees and blobs addressed by
// their content id.
type Repo struct {
	mu     sync.RWMutex
	root   objectid.ID
	trees  map[objectid.ID]model.Tree
	blobs  map[objectid.ID]model.Blob
}

// New constructs an empty repo.
func New() *Repo {
	return &Repo{
		trees: make(map[objectid.ID]model.Tree),
		blobs: make(map[objectid.ID]model.Blob),
	}
}

// PutTree inserts a tree and returns its id.
func (r *Repo) PutTree(t model.Tree) objectid.ID {
	id := objectid.Hash(t.Marshal())
	r.mu.Lock()
	r.trees[id] = t
	r.mu.Unlock()
	return id
}

// PutBlob inserts a blob and returns its id.
func (r *Repo) PutBlob(contents []byte) objectid.ID {
	id := objectid.Hash(contents)
	r.mu.Lock()
	r.blobs[id] = model.Blob{ID: id, Contents: contents}
	r.mu.Unlock()
	return id
}

// SetRoot designates id (previously returned from PutTree) as the
// repo's root.
func (r *Repo) SetRoot(id objectid.ID) {
	r.mu.Lock()
	r.root = id
	r.mu.Unlock()
}

func (r *Repo) GetRootTree(fc backingstore.FetchContext, rootID objectid.ID) (model.Tree, error) {
	return r.GetTree(fc, rootID)
}

func (r *Repo) GetTree(_ backingstore.FetchContext, id objectid.ID) (model.Tree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[id]
	if !ok {
		return model.Tree{}, monoerr.NotFound("localrepo.GetTree", errNotFound(id))
	}
	return t, nil
}

func (r *Repo) GetBlob(_ backingstore.FetchContext, id objectid.ID) (model.Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[id]
	if !ok {
		return model.Blob{}, monoerr.NotFound("localrepo.GetBlob", errNotFound(id))
	}
	return b, nil
}

// PrefetchBlobs is a no-op: every blob is already resident in memory.
func (r *Repo) PrefetchBlobs(backingstore.FetchContext, []objectid.ID) {}

type notFoundErr struct{ id objectid.ID }

func (e notFoundErr) Error() string { return "object " + e.id.String() + " not found" }

func errNotFound(id objectid.ID) error { return notFoundErr{id: id} }

var _ backingstore.Store = (*Repo)(nil)
