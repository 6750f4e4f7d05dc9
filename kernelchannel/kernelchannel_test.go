package kernelchannel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/backingstore/localrepo"
	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/journal"
	"github.com/monofs/monofs/localstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/objectid"
	"github.com/monofs/monofs/objectstore"
	"github.com/monofs/monofs/overlay/fsoverlay"
	"github.com/monofs/monofs/vfspath"
)

func testFC() backingstore.FetchContext {
	return backingstore.FetchContext{Context: context.Background(), Pid: 1}
}

type testEnv struct {
	channel *Channel
	root    uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := localrepo.New()
	rootID := repo.PutTree(model.Tree{})
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

	inodes := inode.NewMap(store, ovl, 0)
	root := inode.NewTreeInode(inode.RootInodeNumber, nil, ovl)
	inodes.Insert(root)

	j := journal.New(objectid.ID{}, 1000)
	c := New(inodes, j, ovl, nil)

	return &testEnv{channel: c, root: inode.RootInodeNumber}
}

func (e *testEnv) rc(t *testing.T) RequestContext {
	t.Helper()
	return e.channel.NewRequest(testFC())
}

func TestCreateFileAndReadBack(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	number, err := env.channel.CreateFile(rc, env.root, vfspath.MustComponent("a.txt"), false)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	n, err := env.channel.WriteFile(rc, number, env.root, vfspath.MustComponent("a.txt"), []byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}

	buf := make([]byte, 5)
	n, err = env.channel.ReadFile(rc, number, buf, 0)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("ReadFile: got %q err=%v", buf[:n], err)
	}

	if env.channel.journal.Len() == 0 {
		t.Fatalf("expected journal entries for create+write")
	}
}

// TestTraceTableTracksNonLookupOps is spec.md §4.8's request-tracing
// requirement: every dispatched op registers in the per-kind trace
// table, not just LookUpInode. A request must be gone from the table
// (FINISH recorded) once its call returns.
func TestTraceTableTracksNonLookupOps(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	if _, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("d")); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if env.channel.trace.InFlight() != 0 {
		t.Fatalf("expected trace table empty after MkDir finishes, got %d in flight", env.channel.trace.InFlight())
	}

	rc2 := env.rc(t)
	if _, err := env.channel.CreateFile(rc2, env.root, vfspath.MustComponent("f.txt"), false); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if env.channel.trace.InFlight() != 0 {
		t.Fatalf("expected trace table empty after CreateFile finishes, got %d in flight", env.channel.trace.InFlight())
	}
}

func TestLookUpInodeResolvesChild(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	number, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("sub"))
	if err != nil {
		t.Fatalf("MkDir: %v", err)
	}

	got, typ, err := env.channel.LookUpInode(rc, "lookup", env.root, vfspath.MustComponent("sub"))
	if err != nil {
		t.Fatalf("LookUpInode: %v", err)
	}
	if got != number || typ != model.Tree_ {
		t.Fatalf("got number=%d typ=%v, want %d/%v", got, typ, number, model.Tree_)
	}
}

func TestLookUpInodeMissingReturnsENOENT(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	if _, _, err := env.channel.LookUpInode(rc, "lookup", env.root, vfspath.MustComponent("nope")); err == nil {
		t.Fatalf("expected error for missing entry")
	}
}

func TestRmDirRejectsNonEmpty(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	dirNumber, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("d"))
	if err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if _, err := env.channel.CreateFile(rc, dirNumber, vfspath.MustComponent("f"), false); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := env.channel.RmDir(rc, env.root, vfspath.MustComponent("d")); err == nil {
		t.Fatalf("expected ENOTEMPTY")
	}
}

func TestRmDirRemovesEmptyDir(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	if _, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("d")); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if err := env.channel.RmDir(rc, env.root, vfspath.MustComponent("d")); err != nil {
		t.Fatalf("RmDir: %v", err)
	}
	if _, _, err := env.channel.LookUpInode(rc, "lookup", env.root, vfspath.MustComponent("d")); err == nil {
		t.Fatalf("expected entry gone")
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	if _, err := env.channel.CreateFile(rc, env.root, vfspath.MustComponent("f"), false); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := env.channel.Unlink(rc, env.root, vfspath.MustComponent("f")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, _, err := env.channel.LookUpInode(rc, "lookup", env.root, vfspath.MustComponent("f")); err == nil {
		t.Fatalf("expected entry gone")
	}
}

func TestRenameMovesEntryBetweenDirectories(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	srcDir, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("src"))
	if err != nil {
		t.Fatalf("MkDir src: %v", err)
	}
	dstDir, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("dst"))
	if err != nil {
		t.Fatalf("MkDir dst: %v", err)
	}
	number, err := env.channel.CreateFile(rc, srcDir, vfspath.MustComponent("f"), false)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := env.channel.Rename(rc, srcDir, vfspath.MustComponent("f"), dstDir, vfspath.MustComponent("g")); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, _, err := env.channel.LookUpInode(rc, "lookup", dstDir, vfspath.MustComponent("g"))
	if err != nil || got != number {
		t.Fatalf("got number=%d err=%v", got, err)
	}
	if _, _, err := env.channel.LookUpInode(rc, "lookup", srcDir, vfspath.MustComponent("f")); err == nil {
		t.Fatalf("expected source entry gone")
	}
}

func TestReadDirIncludesDotEntries(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	if _, err := env.channel.MkDir(rc, env.root, vfspath.MustComponent("sub")); err != nil {
		t.Fatalf("MkDir: %v", err)
	}

	entries, err := env.channel.ReadDir(rc, env.root, env.root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (., .., sub)", len(entries))
	}
	if entries[0].Name != "." || entries[1].Name != ".." {
		t.Fatalf("expected synthetic dot entries first, got %+v", entries[:2])
	}
}

func TestCreateSymlinkAndReadBack(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	number, err := env.channel.CreateSymlink(rc, env.root, vfspath.MustComponent("link"), "target")
	if err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}

	target, err := env.channel.ReadSymlink(rc, number)
	if err != nil {
		t.Fatalf("ReadSymlink: %v", err)
	}
	if target != "target" {
		t.Fatalf("got %q", target)
	}
}

func TestSetInodeAttributesTruncates(t *testing.T) {
	env := newTestEnv(t)
	rc := env.rc(t)

	number, err := env.channel.CreateFile(rc, env.root, vfspath.MustComponent("f"), false)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := env.channel.WriteFile(rc, number, env.root, vfspath.MustComponent("f"), []byte("hello"), 0); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	newSize := int64(2)
	attrs, err := env.channel.SetInodeAttributes(rc, number, &newSize)
	if err != nil {
		t.Fatalf("SetInodeAttributes: %v", err)
	}
	if attrs.Size != 2 {
		t.Fatalf("got size %d, want 2", attrs.Size)
	}
}
