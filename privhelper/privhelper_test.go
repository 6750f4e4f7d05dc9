package privhelper

import (
	"fmt"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// socketPair creates a connected pair of net.UnixConn endpoints, the
// test analogue of the socketpair a real monofsd/monofs_privhelper
// fork shares before exec.
func socketPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("unix.Socketpair: %v", err)
	}
	a, err := fileToUnixConn(fds[0])
	if err != nil {
		t.Fatalf("fileToUnixConn: %v", err)
	}
	b, err := fileToUnixConn(fds[1])
	if err != nil {
		t.Fatalf("fileToUnixConn: %v", err)
	}
	return a, b
}

func fileToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "socketpair")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("expected *net.UnixConn, got %T", conn)
	}
	return uc, nil
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	buf, err := encode(MsgFuseMount, FuseMountRequest{MountPath: "/mnt/x", ReadOnly: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if msg.Type != MsgFuseMount {
		t.Fatalf("got type %v", msg.Type)
	}
}

func TestDecodeHeaderRejectsShortMessage(t *testing.T) {
	if _, err := decodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short message")
	}
}

func TestDecodeHeaderRejectsLengthMismatch(t *testing.T) {
	buf, _ := encode(MsgSetLogFile, SetLogFileRequest{Path: "/tmp/x"})
	buf = append(buf, 0xFF) // trailing garbage not accounted for in the length header
	if _, err := decodeHeader(buf); err == nil {
		t.Fatalf("expected length-mismatch error")
	}
}

func TestClientServerSetLogFileRoundTrip(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close()
	defer b.Close()

	srv := NewServer(b)
	go srv.Serve()

	client := NewClient(a)
	path := t.TempDir() + "/log.txt"
	if err := client.SetLogFile(path); err != nil {
		t.Fatalf("SetLogFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file created at %s: %v", path, err)
	}
}

func TestClientServerBindMountFailureSurfacesError(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close()
	defer b.Close()

	srv := NewServer(b)
	go srv.Serve()

	client := NewClient(a)
	err := client.BindMount("/nonexistent-source-xyz", "/nonexistent-target-xyz")
	if err == nil {
		t.Fatalf("expected bind mount of nonexistent paths to fail")
	}
}
