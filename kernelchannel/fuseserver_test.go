package kernelchannel

import (
	"os"
	"testing"

	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/vfspath"
)

// fakePathIndex records RecordPath/ForgetPath calls the way mount.Mount
// does, without pulling in the rest of mount's dependencies.
type fakePathIndex struct {
	recorded map[uint64]vfspath.Relative
	forgot   map[uint64]bool
}

func newFakePathIndex() *fakePathIndex {
	return &fakePathIndex{recorded: map[uint64]vfspath.Relative{}, forgot: map[uint64]bool{}}
}

func (f *fakePathIndex) RecordPath(number uint64, p vfspath.Relative) { f.recorded[number] = p }
func (f *fakePathIndex) ForgetPath(number uint64)                     { f.forgot[number] = true }

func newTestServer() (*Server, *fakePathIndex) {
	paths := newFakePathIndex()
	s := NewServer(nil, paths, ServerOptions{
		Uid: 1000, Gid: 1000,
		FilePerm: 0644, DirPerm: 0755,
	})
	return s, paths
}

func TestAttrsMapsEntryTypesToModeBits(t *testing.T) {
	s, _ := newTestServer()

	dir := s.attrs(InodeAttributes{Mode: model.Tree_.Mode(), Nlink: 1})
	if dir.Mode&os.ModeDir == 0 {
		t.Fatalf("expected directory bit set, got %v", dir.Mode)
	}

	link := s.attrs(InodeAttributes{Mode: model.Symlink.Mode(), Nlink: 1})
	if link.Mode&os.ModeSymlink == 0 {
		t.Fatalf("expected symlink bit set, got %v", link.Mode)
	}

	exe := s.attrs(InodeAttributes{Mode: model.ExecutableFile.Mode(), Nlink: 1})
	if exe.Mode&0111 == 0 {
		t.Fatalf("expected executable bits set, got %v", exe.Mode)
	}

	reg := s.attrs(InodeAttributes{Mode: model.RegularFile.Mode(), Size: 5, Nlink: 1})
	if reg.Mode&os.ModeDir != 0 || reg.Mode&os.ModeSymlink != 0 {
		t.Fatalf("expected plain file mode, got %v", reg.Mode)
	}
	if reg.Size != 5 {
		t.Fatalf("expected size 5, got %d", reg.Size)
	}
	if reg.Uid != 1000 || reg.Gid != 1000 {
		t.Fatalf("expected uid/gid 1000, got %d/%d", reg.Uid, reg.Gid)
	}
}

func TestRecordChildAndPathOfReconstructsNestedPath(t *testing.T) {
	s, paths := newTestServer()

	const dirNum, fileNum uint64 = 10, 11
	s.recordChild(inode.RootInodeNumber, vfspath.MustComponent("sub"), dirNum)
	s.recordChild(dirNum, vfspath.MustComponent("leaf.txt"), fileNum)

	got, ok := s.pathOf(fileNum)
	if !ok {
		t.Fatalf("expected path to resolve")
	}
	if got.String() != "sub/leaf.txt" {
		t.Fatalf("got %q, want sub/leaf.txt", got.String())
	}

	if paths.recorded[fileNum].String() != "sub/leaf.txt" {
		t.Fatalf("expected path index to record sub/leaf.txt, got %q", paths.recorded[fileNum].String())
	}
}

func TestPathOfRootIsEmptyRelative(t *testing.T) {
	s, _ := newTestServer()
	got, ok := s.pathOf(inode.RootInodeNumber)
	if !ok || !got.IsRoot() {
		t.Fatalf("expected root path, got %v ok=%v", got, ok)
	}
}

func TestPathOfUnknownInodeFails(t *testing.T) {
	s, _ := newTestServer()
	if _, ok := s.pathOf(999); ok {
		t.Fatalf("expected unknown inode to fail path resolution")
	}
}

func TestForgetChildClearsParentAndPathIndex(t *testing.T) {
	s, paths := newTestServer()

	const number uint64 = 42
	s.recordChild(inode.RootInodeNumber, vfspath.MustComponent("f.txt"), number)
	if _, ok := s.pathOf(number); !ok {
		t.Fatalf("expected path to resolve before forgetting")
	}

	s.forgetChild(number)

	if _, ok := s.pathOf(number); ok {
		t.Fatalf("expected path to be gone after forgetChild")
	}
	if !paths.forgot[number] {
		t.Fatalf("expected ForgetPath to have been called")
	}
}

func TestParentOfFallsBackToRootForUnknownInode(t *testing.T) {
	s, _ := newTestServer()
	if got := s.parentOf(777); got != inode.RootInodeNumber {
		t.Fatalf("got %d, want root", got)
	}
}

func TestParentOfReturnsRecordedParent(t *testing.T) {
	s, _ := newTestServer()
	const dirNum uint64 = 5
	s.recordChild(inode.RootInodeNumber, vfspath.MustComponent("d"), dirNum)
	if got := s.parentOf(dirNum); got != inode.RootInodeNumber {
		t.Fatalf("got %d, want root", got)
	}
}

func TestAllocHandleAssignsUniqueIncreasingIDs(t *testing.T) {
	s, _ := newTestServer()

	first := s.allocHandle(handleFile)
	second := s.allocHandle(handleDir)
	if first == second {
		t.Fatalf("expected distinct handle ids, got %d and %d", first, second)
	}
	if second <= first {
		t.Fatalf("expected increasing handle ids, got %d then %d", first, second)
	}

	s.mu.Lock()
	kind, ok := s.handles[second]
	s.mu.Unlock()
	if !ok || kind != handleDir {
		t.Fatalf("expected handle %d to be tracked as a dir handle", second)
	}
}

func TestReleaseHandleRemovesEntry(t *testing.T) {
	s, _ := newTestServer()

	id := s.allocHandle(handleFile)
	s.releaseHandle(id)

	s.mu.Lock()
	_, ok := s.handles[id]
	s.mu.Unlock()
	if ok {
		t.Fatalf("expected handle %d to be released", id)
	}
}
