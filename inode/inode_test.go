package inode

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/backingstore/localrepo"
	"github.com/monofs/monofs/localstore"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay"
	"github.com/monofs/monofs/overlay/fsoverlay"
)

func testFC() backingstore.FetchContext {
	return backingstore.FetchContext{Context: context.Background(), Pid: 1}
}

type testEnv struct {
	repo  *localrepo.Repo
	store *objectstore.Store
	ovl   overlay.Overlay
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := localrepo.New()

	localPath := filepath.Join(t.TempDir(), "local.db")
	local, err := localstore.Open(localPath, localstore.DefaultOptions())
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	ovl, err := fsoverlay.New(filepath.Join(t.TempDir(), "overlay"))
	if err != nil {
		t.Fatalf("fsoverlay.New: %v", err)
	}

	store := objectstore.New(repo, local, objectstore.Options{
		TreeCacheBytes:     1 << 20,
		BlobCacheBytes:     1 << 20,
		MetadataCacheBytes: 1 << 20,
	})

	return &testEnv{repo: repo, store: store, ovl: ovl}
}

// newStoreWithBacking builds an objectstore.Store over a caller-supplied
// backingstore.Store (e.g. a blocking wrapper for race tests), sharing
// the same local-store/overlay construction as newTestEnv.
func newStoreWithBacking(t *testing.T, backing backingstore.Store) *objectstore.Store {
	t.Helper()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"), localstore.DefaultOptions())
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	return objectstore.New(backing, local, objectstore.Options{
		TreeCacheBytes:     1 << 20,
		BlobCacheBytes:     1 << 20,
		MetadataCacheBytes: 1 << 20,
	})
}
