// This file adapts a Channel to github.com/jacobsa/fuse's wire protocol,
// per spec.md §6. Grounded on the teacher's fs/fs.go (type fileSystem):
// the same one-method-per-op shape, op.Context() for cancellation, and
// fuse.ENOSYS/fuse.EEXIST/fuse.ENOTDIR/fuse.ENOTEMPTY sentinel errors,
// generalized to dispatch through a Channel instead of touching inodes
// directly. Unlike the teacher, monofs supports atomic rename (the
// backing tree model has no GCS-style flat-namespace restriction), so
// Server implements Rename where fs.fileSystem falls back to ENOSYS.
package kernelchannel

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/inode"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/vfspath"
)

// PathIndex is the path-bookkeeping capability a Server needs from its
// owning mount (mount.Mount satisfies it): the channel itself only ever
// sees parent/name pairs, never a resident inode's current full path.
type PathIndex interface {
	RecordPath(number uint64, p vfspath.Relative)
	ForgetPath(number uint64)
}

// parentRef is the (parent inode, leaf name) pair a Server needs to
// re-derive the path WriteFile must journal: WriteFileOp carries only
// the written inode's own number, not its parent.
type parentRef struct {
	parent uint64
	name   vfspath.Component
}

// Server adapts a Channel to fuseutil.FileSystem. One Server serves
// exactly one Mount; the kernel connection it drives is created by
// fuseutil.NewFileSystemServer(server) and passed to fuse.Mount.
type Server struct {
	fuseutil.NotImplementedFileSystem

	channel *Channel
	paths   PathIndex

	uid, gid          uint32
	filePerm, dirPerm os.FileMode

	mu         sync.Mutex
	parents    map[uint64]parentRef
	handles    map[fuseops.HandleID]handleKind
	nextHandle fuseops.HandleID
}

type handleKind int

const (
	handleDir handleKind = iota
	handleFile
)

// ServerOptions configures the ownership and permission bits reported
// for every inode, since the tree model carries neither (spec.md §4.5).
type ServerOptions struct {
	Uid, Gid          uint32
	FilePerm, DirPerm os.FileMode
}

// NewServer constructs a Server dispatching through channel, using paths
// to keep the journal's path bookkeeping in sync with every op that
// creates or moves an entry. A removed entry's path is dropped when
// the kernel forgets its inode (ForgetInode), not by RmDir or Unlink.
func NewServer(channel *Channel, paths PathIndex, opts ServerOptions) *Server {
	return &Server{
		channel:  channel,
		paths:    paths,
		uid:      opts.Uid,
		gid:      opts.Gid,
		filePerm: opts.FilePerm,
		dirPerm:  opts.DirPerm,
		parents:  map[uint64]parentRef{inode.RootInodeNumber: {}},
		handles:  make(map[fuseops.HandleID]handleKind),
	}
}

func (s *Server) fc(op fuseops.Op) backingstore.FetchContext {
	return backingstore.FetchContext{Context: op.Context()}
}

func (s *Server) rc(op fuseops.Op) RequestContext {
	return s.channel.NewRequest(s.fc(op))
}

func (s *Server) attrs(in InodeAttributes) fuseops.InodeAttributes {
	mode := os.FileMode(s.filePerm)
	switch in.Mode {
	case model.Tree_.Mode():
		mode = os.ModeDir | s.dirPerm
	case model.Symlink.Mode():
		mode = os.ModeSymlink | s.filePerm
	case model.ExecutableFile.Mode():
		mode = s.filePerm | 0111
	}

	now := time.Now()
	return fuseops.InodeAttributes{
		Size:   uint64(in.Size),
		Nlink:  in.Nlink,
		Mode:   mode,
		Uid:    s.uid,
		Gid:    s.gid,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
	}
}

func (s *Server) childEntry(rc RequestContext, number uint64) (fuseops.ChildInodeEntry, error) {
	attrs, err := s.channel.GetInodeAttributes(rc, number)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	return fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(number),
		Attributes: s.attrs(attrs),
	}, nil
}

// recordChild remembers (parent, name) for number, so a later WriteFile
// on number can re-derive the path to journal, and records the path
// index entry the owning Mount keeps for the journal itself.
func (s *Server) recordChild(parent uint64, name vfspath.Component, number uint64) {
	s.mu.Lock()
	s.parents[number] = parentRef{parent: parent, name: name}
	s.mu.Unlock()

	if base, ok := s.pathOf(parent); ok {
		s.paths.RecordPath(number, base.Join(name))
	}
}

// pathOf reconstructs number's path by walking parentRef links up to the
// root. Used only for journal bookkeeping, not on any hot read/write
// path, so the O(depth) walk is acceptable.
func (s *Server) pathOf(number uint64) (vfspath.Relative, bool) {
	if number == inode.RootInodeNumber {
		return vfspath.Root, true
	}

	s.mu.Lock()
	ref, ok := s.parents[number]
	s.mu.Unlock()
	if !ok {
		return vfspath.Relative{}, false
	}

	base, ok := s.pathOf(ref.parent)
	if !ok {
		return vfspath.Relative{}, false
	}
	return base.Join(ref.name), true
}

func (s *Server) forgetChild(number uint64) {
	s.mu.Lock()
	delete(s.parents, number)
	s.mu.Unlock()
	s.paths.ForgetPath(number)
}

func (s *Server) allocHandle(kind handleKind) fuseops.HandleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	id := s.nextHandle
	s.handles[id] = kind
	return id
}

func (s *Server) releaseHandle(id fuseops.HandleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// Init is a no-op: the channel and its inode map are already built
// (by mount.New) before NewServer is called.
func (s *Server) Init(op *fuseops.InitOp) (err error) {
	return nil
}

func (s *Server) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	rc := s.rc(op)
	number, _, err := s.channel.LookUpInode(rc, "lookup", uint64(op.Parent), name)
	if err != nil {
		return monoerr.Errno(err)
	}
	s.recordChild(uint64(op.Parent), name, number)

	op.Entry, err = s.childEntry(rc, number)
	if err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	attrs, err := s.channel.GetInodeAttributes(s.rc(op), uint64(op.Inode))
	if err != nil {
		return monoerr.Errno(err)
	}
	op.Attributes = s.attrs(attrs)
	return nil
}

func (s *Server) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	var newSize *int64
	if op.Size != nil {
		n := int64(*op.Size)
		newSize = &n
	}

	attrs, err := s.channel.SetInodeAttributes(s.rc(op), uint64(op.Inode), newSize)
	if err != nil {
		return monoerr.Errno(err)
	}
	op.Attributes = s.attrs(attrs)
	return nil
}

func (s *Server) ForgetInode(op *fuseops.ForgetInodeOp) (err error) {
	s.channel.ForgetInode(s.rc(op), uint64(op.Inode), op.N)
	s.forgetChild(uint64(op.Inode))
	return nil
}

func (s *Server) MkDir(op *fuseops.MkDirOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	rc := s.rc(op)
	number, err := s.channel.MkDir(rc, uint64(op.Parent), name)
	if err != nil {
		if err == inode.ErrNotEmpty {
			return fuse.ENOTEMPTY
		}
		return monoerr.Errno(err)
	}
	s.recordChild(uint64(op.Parent), name, number)

	op.Entry, err = s.childEntry(rc, number)
	if err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) CreateFile(op *fuseops.CreateFileOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	rc := s.rc(op)
	executable := op.Mode&0111 != 0
	number, err := s.channel.CreateFile(rc, uint64(op.Parent), name, executable)
	if err != nil {
		return monoerr.Errno(err)
	}
	s.recordChild(uint64(op.Parent), name, number)

	op.Entry, err = s.childEntry(rc, number)
	if err != nil {
		return monoerr.Errno(err)
	}
	op.Handle = s.allocHandle(handleFile)
	return nil
}

func (s *Server) CreateSymlink(op *fuseops.CreateSymlinkOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	rc := s.rc(op)
	number, err := s.channel.CreateSymlink(rc, uint64(op.Parent), name, op.Target)
	if err != nil {
		return monoerr.Errno(err)
	}
	s.recordChild(uint64(op.Parent), name, number)

	op.Entry, err = s.childEntry(rc, number)
	if err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) RmDir(op *fuseops.RmDirOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	if err := s.channel.RmDir(s.rc(op), uint64(op.Parent), name); err != nil {
		if err == inode.ErrNotEmpty {
			return fuse.ENOTEMPTY
		}
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) Unlink(op *fuseops.UnlinkOp) (err error) {
	name, err := vfspath.NewComponent(op.Name)
	if err != nil {
		return syscall.EINVAL
	}

	if err := s.channel.Unlink(s.rc(op), uint64(op.Parent), name); err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

// Rename moves an entry between directories, atomically with respect to
// every other rename on the mount (Channel.Rename's renameMu). The
// teacher's fs.fileSystem has no equivalent: GCS object names can't be
// renamed in place, so gcsfuse always falls through to ENOSYS here.
func (s *Server) Rename(op *fuseops.RenameOp) (err error) {
	oldName, err := vfspath.NewComponent(op.OldName)
	if err != nil {
		return syscall.EINVAL
	}
	newName, err := vfspath.NewComponent(op.NewName)
	if err != nil {
		return syscall.EINVAL
	}

	rc := s.rc(op)
	if err := s.channel.Rename(rc, uint64(op.OldParent), oldName, uint64(op.NewParent), newName); err != nil {
		if err == inode.ErrNotEmpty {
			return fuse.ENOTEMPTY
		}
		return monoerr.Errno(err)
	}

	// Channel.Rename reports only success/failure, not the moved inode's
	// number, so re-resolve it under its new name to fix up the parent
	// link WriteFile and ReadDir's ".." depend on. The child is already
	// resident, so this is a Map.Get hit, not a fresh load.
	if number, _, err := s.channel.LookUpInode(rc, "rename-fixup", uint64(op.NewParent), newName); err == nil {
		s.recordChild(uint64(op.NewParent), newName, number)
	}
	return nil
}

func (s *Server) OpenDir(op *fuseops.OpenDirOp) (err error) {
	if err := s.channel.OpenDir(s.rc(op), uint64(op.Inode)); err != nil {
		return monoerr.Errno(err)
	}
	op.Handle = s.allocHandle(handleDir)
	return nil
}

func (s *Server) ReadDir(op *fuseops.ReadDirOp) (err error) {
	entries, err := s.channel.ReadDir(s.rc(op), uint64(op.Inode), s.parentOf(uint64(op.Inode)))
	if err != nil {
		return monoerr.Errno(err)
	}

	buf := make([]byte, 0, op.Size)
	for i, e := range entries {
		if fuseops.DirOffset(i) < op.Offset {
			continue
		}
		dt := fuseops.DT_File
		switch e.Type {
		case model.Tree_:
			dt = fuseops.DT_Directory
		case model.Symlink:
			dt = fuseops.DT_Link
		}
		entryBuf := make([]byte, 256+len(e.Name))
		n := fuseutil.WriteDirent(entryBuf, fuseops.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(op.Inode),
			Name:   e.Name,
			Type:   dt,
		})
		if n == 0 || len(buf)+n > op.Size {
			break
		}
		buf = append(buf, entryBuf[:n]...)
	}
	op.Data = buf
	return nil
}

// parentOf returns the inode number of number's parent directory, for
// ReadDir's synthesized "..", falling back to the root if number's
// parent was never recorded (e.g. number is the root itself).
func (s *Server) parentOf(number uint64) uint64 {
	s.mu.Lock()
	ref, ok := s.parents[number]
	s.mu.Unlock()
	if !ok {
		return inode.RootInodeNumber
	}
	return ref.parent
}

func (s *Server) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	if err := s.channel.ReleaseDirHandle(s.rc(op), uint64(op.Inode)); err != nil {
		return monoerr.Errno(err)
	}
	s.releaseHandle(op.Handle)
	return nil
}

func (s *Server) OpenFile(op *fuseops.OpenFileOp) (err error) {
	op.Handle = s.allocHandle(handleFile)
	return nil
}

func (s *Server) ReadFile(op *fuseops.ReadFileOp) (err error) {
	buf := make([]byte, op.Size)
	n, err := s.channel.ReadFile(s.rc(op), uint64(op.Inode), buf, op.Offset)
	if err != nil && n == 0 {
		return monoerr.Errno(err)
	}
	op.Data = buf[:n]
	return nil
}

func (s *Server) WriteFile(op *fuseops.WriteFileOp) (err error) {
	s.mu.Lock()
	ref, ok := s.parents[uint64(op.Inode)]
	s.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	if _, err := s.channel.WriteFile(s.rc(op), uint64(op.Inode), ref.parent, ref.name, op.Data, op.Offset); err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) ReadSymlink(op *fuseops.ReadSymlinkOp) (err error) {
	target, err := s.channel.ReadSymlink(s.rc(op), uint64(op.Inode))
	if err != nil {
		return monoerr.Errno(err)
	}
	op.Target = target
	return nil
}

func (s *Server) SyncFile(op *fuseops.SyncFileOp) (err error) {
	if err := s.channel.SyncFile(s.rc(op), uint64(op.Inode)); err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) FlushFile(op *fuseops.FlushFileOp) (err error) {
	if err := s.channel.FlushFile(s.rc(op), uint64(op.Inode)); err != nil {
		return monoerr.Errno(err)
	}
	return nil
}

func (s *Server) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) (err error) {
	s.releaseHandle(op.Handle)
	return nil
}
