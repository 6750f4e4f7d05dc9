package mount

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/backingstore/localrepo"
	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/localstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay/fsoverlay"
	"github.com/monofs/monofs/vfspath"
)

func testFC() backingstore.FetchContext {
	return backingstore.FetchContext{Context: context.Background(), Pid: 1}
}

func newTestMount(t *testing.T) (*Mount, *localrepo.Repo) {
	t.Helper()
	repo := localrepo.New()
	rootID := repo.PutTree(model.Tree{Entries: []model.TreeEntry{
		{Name: "existing.txt", Type: model.RegularFile, ID: repo.PutBlob([]byte("hi"))},
	}})
	repo.SetRoot(rootID)

	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"), localstore.DefaultOptions())
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

	m, err := New(testFC(), rootID, Options{
		MountPath: t.TempDir(),
		Backing:   repo,
		Store:     store,
		Overlay:   ovl,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, repo
}

func TestNewSeedsRootFromBackingTree(t *testing.T) {
	m, _ := newTestMount(t)

	number, typ, err := m.Channel().LookUpInode(m.Channel().NewRequest(testFC()), "lookup", inode.RootInodeNumber, vfspath.MustComponent("existing.txt"))
	if err != nil {
		t.Fatalf("LookUpInode: %v", err)
	}
	if typ != model.RegularFile || number == 0 {
		t.Fatalf("got number=%d typ=%v", number, typ)
	}
}

func TestWatermarkStartsAtLeastRoot(t *testing.T) {
	m, _ := newTestMount(t)
	if m.Watermark() < inode.RootInodeNumber {
		t.Fatalf("expected watermark >= root, got %d", m.Watermark())
	}
}

func TestShutdownPersistsWatermark(t *testing.T) {
	m, _ := newTestMount(t)
	rc := m.Channel().NewRequest(testFC())
	if _, err := m.Channel().MkDir(rc, inode.RootInodeNumber, vfspath.MustComponent("d")); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	before := m.Watermark()

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if before < inode.RootInodeNumber {
		t.Fatalf("expected watermark >= root, got %d", before)
	}
	persisted, err := m.overlay.(watermarkOverlay).Watermark()
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if persisted != before {
		t.Fatalf("persisted watermark = %d, want %d", persisted, before)
	}
}

func TestRecordAndForgetPath(t *testing.T) {
	m, _ := newTestMount(t)
	rel, err := vfspath.NewRelative("a/b")
	if err != nil {
		t.Fatalf("NewRelative: %v", err)
	}
	m.RecordPath(42, rel)
	if got, ok := m.Path(42); !ok || got.String() != "a/b" {
		t.Fatalf("got %v ok=%v", got, ok)
	}
	m.ForgetPath(42)
	if _, ok := m.Path(42); ok {
		t.Fatalf("expected path forgotten")
	}
}
