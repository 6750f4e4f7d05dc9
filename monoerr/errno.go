package monoerr

import "syscall"

// Errno maps err to the kernel errno the kernel channel must return,
// per spec.md §7's propagation policy: NotFound maps to ENOENT,
// inode errors carry their own explicit errno, PermissionDenied maps
// to EPERM, Cancelled maps to EINTR, and everything else defaults to
// EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	me, ok := As(err)
	if !ok {
		return syscall.EIO
	}

	switch me.Kind {
	case KindNotFound:
		return syscall.ENOENT
	case KindInode:
		return syscall.Errno(me.Errno)
	case KindPermissionDenied:
		return syscall.EPERM
	case KindCancelled:
		return syscall.EINTR
	default:
		// DataCorruption, Transient and Invariant
		// violations all surface as EIO, per spec.md §7.
		return syscall.EIO
	}
}
