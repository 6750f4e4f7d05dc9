package takeover

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/monofs/monofs/monofslog"
)

// Server is the old daemon's half of the handshake: it accepts the
// incoming connection from a starting successor, negotiates a
// protocol version, and (once the caller confirms it is safe to hand
// off) sends the serialized mount list and descriptors.
type Server struct {
	conn *net.UnixConn
}

// NewServer wraps the accepted takeover-socket connection.
func NewServer(conn *net.UnixConn) *Server {
	return &Server{conn: conn}
}

// NegotiateVersion reads the successor's supported-version list,
// responds with the highest mutually supported version, and returns
// it. Per spec.md §4.10's failure modes, a version mismatch causes an
// ERROR response and a non-fatal error return: the old daemon keeps
// running, it is the caller's job not to proceed to SendMounts.
func (s *Server) NegotiateVersion() (uint32, error) {
	t, payload, _, err := readFrame(s.conn)
	if err != nil {
		return 0, err
	}
	if t != MsgVersion {
		return 0, fmt.Errorf("takeover: expected VERSION, got %s", t)
	}
	var req versionPayload
	if err := decodeVersionPayload(payload, &req); err != nil {
		return 0, err
	}

	chosen, ok := chooseVersion(SupportedVersions, req.Supported)
	if !ok {
		werr := writeFrame(s.conn, MsgError, errorPayload{Reason: "no mutually supported protocol version"})
		if werr != nil {
			return 0, werr
		}
		return 0, fmt.Errorf("takeover: no mutually supported version (ours=%v, theirs=%v)", SupportedVersions, req.Supported)
	}

	if err := writeFrame(s.conn, MsgVersion, versionPayload{Supported: SupportedVersions, Chosen: chosen}); err != nil {
		return 0, err
	}
	return chosen, nil
}

// SendMounts serializes and sends every live mount, along with the
// main lock fd, the RPC service fd, and each mount's kernel-connection
// fd, in the order [lock, service, mount...]. It blocks for the
// successor's acknowledgement before returning, per spec.md §4.10 step
// 5 ("the new daemon receives the message, acknowledges").
//
// If the successor dies mid-handshake (the ACK read fails), the
// caller must treat the handoff as not having happened and keep
// serving its own mounts: SendMounts itself performs no mount-side
// rollback since it never stopped serving in the first place.
func (s *Server) SendMounts(msg MountsMessage, lockFD, serviceFD int, mountFDs []int) error {
	fds := append([]int{lockFD, serviceFD}, mountFDs...)
	if err := writeFrame(s.conn, MsgMounts, msg, fds...); err != nil {
		return fmt.Errorf("takeover: sending mounts: %w", err)
	}

	t, _, _, err := readFrame(s.conn)
	if err != nil {
		monofslog.Warnf("takeover: successor died before acknowledging handoff: %v", err)
		return fmt.Errorf("takeover: waiting for ack: %w", err)
	}
	if t != MsgAck {
		return fmt.Errorf("takeover: expected ACK, got %s", t)
	}
	return nil
}

func decodeVersionPayload(payload []byte, v *versionPayload) error {
	return json.Unmarshal(payload, v)
}
