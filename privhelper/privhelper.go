// Package privhelper implements the wire protocol between monofsd and
// a separate, privileged process that performs the operations an
// unprivileged user cannot: opening /dev/fuse, bind-mounting the
// working copy over its final location, and handing both across a
// graceful-restart exec.
//
// Grounded on the teacher's gcsfuse_mount_helper/main.go: a small
// helper binary invoked with mount(8)-style arguments that execs the
// real daemon, generalized here from "exec a subprocess with translated
// flags" to "run as a long-lived privileged peer, communicating over
// an inherited net.UnixConn with SCM_RIGHTS file-descriptor passing"
// (golang.org/x/sys/unix, already a teacher dependency used in
// fs/fs.go for unix.Getrlimit).
package privhelper

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// MessageType tags every request/response crossing the privhelper
// socket, per spec.md §4.9.
type MessageType uint32

const (
	MsgFuseMount MessageType = iota + 1
	MsgFuseUnmount
	MsgBindMount
	MsgFuseTakeoverShutdown
	MsgFuseTakeoverStartup
	MsgSetLogFile
	MsgResponse
)

func (t MessageType) String() string {
	switch t {
	case MsgFuseMount:
		return "FUSE_MOUNT"
	case MsgFuseUnmount:
		return "FUSE_UNMOUNT"
	case MsgBindMount:
		return "BIND_MOUNT"
	case MsgFuseTakeoverShutdown:
		return "FUSE_TAKEOVER_SHUTDOWN"
	case MsgFuseTakeoverStartup:
		return "FUSE_TAKEOVER_STARTUP"
	case MsgSetLogFile:
		return "SET_LOG_FILE"
	case MsgResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// FuseMountRequest asks the helper to open /dev/fuse and mount it at
// MountPath, returning the fuse fd over SCM_RIGHTS.
type FuseMountRequest struct {
	MountPath string
	ReadOnly  bool
}

// FuseUnmountRequest asks the helper to unmount MountPath.
type FuseUnmountRequest struct {
	MountPath string
}

// BindMountRequest asks the helper to bind-mount Source onto Target.
type BindMountRequest struct {
	Source string
	Target string
}

// FuseTakeoverShutdownRequest tells the helper that the current
// process is about to hand MountPath to a graceful-restart successor;
// the fuse fd stays open in the process so it can be inherited. The
// helper only acknowledges it.
type FuseTakeoverShutdownRequest struct {
	MountPath string
}

// FuseTakeoverStartupRequest tells the helper that a successor process
// has resumed serving MountPath on the fuse fd it inherited. No fd is
// sent with it; the helper logs and acknowledges it.
type FuseTakeoverStartupRequest struct {
	MountPath string
}

// SetLogFileRequest asks the helper to reopen its log output at Path,
// for log rotation without a restart.
type SetLogFileRequest struct {
	Path string
}

// Response is the helper's reply to every request. Ok is false only
// when Error is non-empty.
type Response struct {
	Ok    bool
	Error string
}

// message is the on-the-wire envelope: a 4-byte big-endian MessageType
// header (mirroring model.Tree's own u32-prefixed framing, spec.md
// §6), followed by a 4-byte length and a JSON payload.
type message struct {
	Type    MessageType
	Payload []byte
}

func encode(t MessageType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("privhelper: encoding %s payload: %w", t, err)
	}
	buf := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(t))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[8:], body)
	return buf, nil
}

func decodeResponse(payload []byte, resp *Response) error {
	if err := json.Unmarshal(payload, resp); err != nil {
		return fmt.Errorf("privhelper: decoding response: %w", err)
	}
	return nil
}

func decodeHeader(buf []byte) (message, error) {
	if len(buf) < 8 {
		return message{}, fmt.Errorf("privhelper: message too short: %d bytes", len(buf))
	}
	t := MessageType(binary.BigEndian.Uint32(buf[0:4]))
	n := binary.BigEndian.Uint32(buf[4:8])
	if uint32(len(buf)-8) != n {
		return message{}, fmt.Errorf("privhelper: length mismatch: header says %d, got %d", n, len(buf)-8)
	}
	return message{Type: t, Payload: buf[8:]}, nil
}

// writeMessage writes t/payload to conn, optionally passing fds via an
// SCM_RIGHTS ancillary message.
func writeMessage(conn *net.UnixConn, t MessageType, payload interface{}, fds ...int) error {
	buf, err := encode(t, payload)
	if err != nil {
		return err
	}
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	_, _, err = conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return fmt.Errorf("privhelper: writing %s: %w", t, err)
	}
	return nil
}

// readMessage reads one framed message from conn, returning any file
// descriptors passed alongside it via SCM_RIGHTS. The caller owns the
// returned fds and must close them.
func readMessage(conn *net.UnixConn) (message, []int, error) {
	buf := make([]byte, 64*1024)
	oob := make([]byte, unix.CmsgSpace(4*16)) // room for up to 16 fds

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return message{}, nil, fmt.Errorf("privhelper: reading message: %w", err)
	}

	msg, err := decodeHeader(buf[:n])
	if err != nil {
		return message{}, nil, err
	}

	var fds []int
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return message{}, nil, fmt.Errorf("privhelper: parsing control message: %w", err)
		}
		for _, c := range cmsgs {
			got, err := unix.ParseUnixRights(&c)
			if err != nil {
				continue
			}
			fds = append(fds, got...)
		}
	}
	return msg, fds, nil
}
