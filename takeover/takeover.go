// Package takeover implements the graceful-restart handoff protocol of
// spec.md §4.10: a local-socket exchange by which a new monofsd
// process inherits every live mount's kernel-connection descriptor
// from the old process without unmounting.
//
// No teacher file implements this; it is grounded on the same
// golang.org/x/sys/unix SCM_RIGHTS fd-passing primitives as
// privhelper (itself grounded on the teacher's
// gcsfuse_mount_helper/main.go), and on the on-disk tree format's
// versioned-header convention (spec.md §6: u32 version, u32 count)
// for the takeover message's own 4-byte type header.
package takeover

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"

	"github.com/monofs/monofs/objectid"
	"golang.org/x/sys/unix"
)

// MessageType tags every frame on the takeover socket, per spec.md
// §4.10's "versioned with a 4-byte type header (ERROR or MOUNTS)",
// extended here with the version-negotiation and acknowledgement
// frames the handshake also needs.
type MessageType uint32

const (
	MsgVersion MessageType = iota + 1
	MsgMounts
	MsgError
	MsgAck
)

func (t MessageType) String() string {
	switch t {
	case MsgVersion:
		return "VERSION"
	case MsgMounts:
		return "MOUNTS"
	case MsgError:
		return "ERROR"
	case MsgAck:
		return "ACK"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// ProtocolVersion1 is the only version this implementation speaks; the
// negotiation message format exists so a future version can be added
// without breaking an old daemon talking to a new one.
const ProtocolVersion1 uint32 = 1

// SupportedVersions lists every protocol version this build
// understands, highest first.
var SupportedVersions = []uint32{ProtocolVersion1}

// BindMount names one bind mount layered over a working copy's mount
// point, carried in a MountSnapshot.
type BindMount struct {
	ClientPath string
	MountPath  string
}

// MountSnapshot is everything the new daemon needs to resume serving
// one mount without replaying its startup sequence, per spec.md
// §4.10's "mount path, state directory, bind mounts, current root
// hash, serialized inode-map snapshot, serialized file-handle table".
type MountSnapshot struct {
	MountPath  string
	StateDir   string
	BindMounts []BindMount
	RootHash   objectid.ID

	// InodeMapSnapshot and FileHandleTable are opaque to this package;
	// the mount package is responsible for producing and consuming
	// them (a flat encoding of inode.Map's live entries and open
	// handle bookkeeping respectively).
	InodeMapSnapshot []byte
	FileHandleTable  []byte

	// FDIndex is this mount's position in the accompanying SCM_RIGHTS
	// ancillary data (one kernel-connection fd per mount, in
	// MountsMessage.Mounts order); the receiver maps fds back to
	// mounts positionally rather than by value.
	FDIndex int
}

// MountsMessage is the old daemon's full handoff payload: every live
// mount plus the two process-wide descriptors spec.md §4.10 calls out
// by name (the main lock file and the thrift/RPC service socket).
type MountsMessage struct {
	Mounts []MountSnapshot

	// LockFDIndex and ServiceFDIndex locate the main lock file and the
	// RPC service descriptor within the handoff's ancillary fds, which
	// are ordered: [lock fd, service fd, mount fds...].
	LockFDIndex    int
	ServiceFDIndex int
}

// versionPayload is the body of a MsgVersion frame.
type versionPayload struct {
	Supported []uint32
	Chosen    uint32 // 0 until the responder has picked one
}

// errorPayload is the body of a MsgError frame.
type errorPayload struct {
	Reason string
}

func encode(t MessageType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("takeover: encoding %s: %w", t, err)
	}
	buf := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(t))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[8:], body)
	return buf, nil
}

func decode(buf []byte) (MessageType, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("takeover: message too short: %d bytes", len(buf))
	}
	t := MessageType(binary.BigEndian.Uint32(buf[0:4]))
	n := binary.BigEndian.Uint32(buf[4:8])
	if uint32(len(buf)-8) != n {
		return 0, nil, fmt.Errorf("takeover: length mismatch: header says %d, got %d", n, len(buf)-8)
	}
	return t, buf[8:], nil
}

func writeFrame(conn *net.UnixConn, t MessageType, payload interface{}, fds ...int) error {
	buf, err := encode(t, payload)
	if err != nil {
		return err
	}
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	_, _, err = conn.WriteMsgUnix(buf, oob, nil)
	return err
}

func readFrame(conn *net.UnixConn) (MessageType, []byte, []int, error) {
	buf := make([]byte, 1<<20) // mount-map snapshots can be large
	oob := make([]byte, unix.CmsgSpace(4*64))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("takeover: reading frame: %w", err)
	}
	t, payload, err := decode(buf[:n])
	if err != nil {
		return 0, nil, nil, err
	}

	var fds []int
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return 0, nil, nil, fmt.Errorf("takeover: parsing control message: %w", err)
		}
		for _, c := range cmsgs {
			got, err := unix.ParseUnixRights(&c)
			if err != nil {
				continue
			}
			fds = append(fds, got...)
		}
	}
	return t, payload, fds, nil
}

func chooseVersion(mine, theirs []uint32) (uint32, bool) {
	mineSet := make(map[uint32]bool, len(mine))
	for _, v := range mine {
		mineSet[v] = true
	}
	best := uint32(0)
	for _, v := range theirs {
		if mineSet[v] && v > best {
			best = v
		}
	}
	return best, best != 0
}
