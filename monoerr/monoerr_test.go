package monoerr

import (
	"errors"
	"strings"
	"syscall"
	"testing"
)

type stringerKey string

func (s stringerKey) String() string { return string(s) }

func TestKindOfAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Transient("objectstore.fetch", cause)

	if KindOf(err) != KindTransient {
		t.Fatalf("got kind %v, want transient", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
	if !IsRetryable(err) {
		t.Fatalf("transient errors must be retryable")
	}
}

func TestKindOfUnknownForPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors should report KindUnknown")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors must not be retryable")
	}
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{NotFound("inode.lookup", errors.New("absent")), syscall.ENOENT},
		{DataCorruption("localstore.get", stringerKey("abc123"), errors.New("mismatch")), syscall.EIO},
		{Inode("inode.write", int(syscall.ENOSPC), errors.New("full")), syscall.ENOSPC},
		{Invariant("inode.state", errors.New("impossible")), syscall.EIO},
		{PermissionDenied("privhelper.mount", errors.New("denied")), syscall.EPERM},
		{Cancelled("objectstore.fetch", errors.New("cancelled")), syscall.EINTR},
		{errors.New("not ours"), syscall.EIO},
		{nil, 0},
	}

	for _, c := range cases {
		if got := Errno(c.err); got != c.want {
			t.Errorf("Errno(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := NotFound("inode.lookup", errors.New("absent"))
	if got := err.Error(); !strings.Contains(got, "inode.lookup") {
		t.Fatalf("expected error message to include op, got %q", got)
	}
}
