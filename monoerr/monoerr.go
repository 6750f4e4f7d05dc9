// Package monoerr defines the error kinds propagated between monofs's
// layers, per spec.md §7, and their mapping to kernel errno values.
//
// Grounded on the teacher's plain fmt.Errorf("operation: %v", err)
// wrapping style (gcsproxy/mutable_content.go), generalized with
// errors.Is-compatible sentinel kinds since the kernel channel needs
// to recover a specific errno from an arbitrarily wrapped error.
package monoerr

import (
	"errors"
	"fmt"
)

// Kind identifies which of spec.md §7's error kinds an error belongs
// to.
type Kind int

const (
	// KindUnknown is the default, uncategorized kind. The kernel
	// channel maps it to EIO.
	KindUnknown Kind = iota
	// KindNotFound means the requested object is absent from both the
	// local store and the backing store.
	KindNotFound
	// KindDataCorruption means an object read back from the local
	// store did not match its key's hash.
	KindDataCorruption
	// KindTransient means the error may succeed if retried. No layer
	// of this module retries it; it is returned to the caller.
	KindTransient
	// KindInode carries an explicit errno tied to an inode operation.
	KindInode
	// KindInvariant means a state machine reached an impossible state.
	KindInvariant
	// KindPermissionDenied comes from the privilege helper or a policy
	// check.
	KindPermissionDenied
	// KindCancelled means an awaited operation was cancelled by its
	// caller.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDataCorruption:
		return "data_corruption"
	case KindTransient:
		return "transient"
	case KindInode:
		return "inode"
	case KindInvariant:
		return "invariant"
	case KindPermissionDenied:
		return "permission_denied"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a monofs error annotated with a Kind and, for inode errors,
// an explicit errno. It wraps an underlying cause the way the teacher
// wraps with fmt.Errorf, but keeps the Kind queryable without string
// matching.
type Error struct {
	Kind  Kind
	Op    string
	Errno int // valid only when Kind == KindInode
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound wraps err as a NotFound error occurring during op.
func NotFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// DataCorruption wraps err as a DataCorruption error for the object
// named key.
func DataCorruption(op string, key fmt.Stringer, err error) error {
	return &Error{Kind: KindDataCorruption, Op: op, Err: fmt.Errorf("object %s: %w", key, err)}
}

// Transient wraps err as a retryable backing-store error.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Inode wraps err as a structural error tied to an inode, carrying the
// errno that must be returned to the kernel verbatim.
func Inode(op string, errno int, err error) error {
	return &Error{Kind: KindInode, Op: op, Errno: errno, Err: err}
}

// Invariant wraps err as a logic-bug error: a state machine observed
// in an impossible state.
func Invariant(op string, err error) error {
	return &Error{Kind: KindInvariant, Op: op, Err: err}
}

// PermissionDenied wraps err as a denial from the privilege helper or
// a policy check.
func PermissionDenied(op string, err error) error {
	return &Error{Kind: KindPermissionDenied, Op: op, Err: err}
}

// Cancelled wraps err (typically context.Canceled) as a cancellation.
func Cancelled(op string, err error) error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// As unwraps err looking for a *Error, returning it and true if found.
func As(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// KindOf reports the Kind of err, or KindUnknown if err is not (or
// does not wrap) a *Error.
func KindOf(err error) Kind {
	if me, ok := As(err); ok {
		return me.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a Transient error, the only kind
// the propagation policy in spec.md §7 permits retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
