package takeover

import (
	"encoding/json"
	"fmt"
	"net"
)

// Client is the new daemon's half of the handshake.
type Client struct {
	conn *net.UnixConn
}

// NewClient wraps a connection dialed to the old daemon's takeover
// socket.
func NewClient(conn *net.UnixConn) *Client {
	return &Client{conn: conn}
}

// NegotiateVersion sends our supported-version list and returns the
// version the old daemon chose. Per spec.md §4.10's failure modes, a
// version-mismatch ERROR response is returned as a plain error: the
// caller should fall back to an ordinary cold start rather than treat
// it as fatal.
func (c *Client) NegotiateVersion() (uint32, error) {
	if err := writeFrame(c.conn, MsgVersion, versionPayload{Supported: SupportedVersions}); err != nil {
		return 0, err
	}

	t, payload, _, err := readFrame(c.conn)
	if err != nil {
		return 0, fmt.Errorf("takeover: transport error during negotiation (treated as fatal for this daemon): %w", err)
	}
	switch t {
	case MsgError:
		var e errorPayload
		if uerr := json.Unmarshal(payload, &e); uerr != nil {
			return 0, uerr
		}
		return 0, fmt.Errorf("takeover: old daemon rejected handoff: %s", e.Reason)
	case MsgVersion:
		var resp versionPayload
		if uerr := json.Unmarshal(payload, &resp); uerr != nil {
			return 0, uerr
		}
		return resp.Chosen, nil
	default:
		return 0, fmt.Errorf("takeover: expected VERSION or ERROR, got %s", t)
	}
}

// ReceiveMounts reads the old daemon's handoff payload and its
// accompanying file descriptors, then sends the acknowledgement that
// lets the old daemon exit. The returned fds are ordered [lock,
// service, mount...], mirroring Server.SendMounts.
func (c *Client) ReceiveMounts() (MountsMessage, []int, error) {
	t, payload, fds, err := readFrame(c.conn)
	if err != nil {
		return MountsMessage{}, nil, fmt.Errorf("takeover: transport error receiving mounts: %w", err)
	}
	if t != MsgMounts {
		return MountsMessage{}, nil, fmt.Errorf("takeover: expected MOUNTS, got %s", t)
	}
	var msg MountsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return MountsMessage{}, nil, err
	}
	if len(fds) != 2+len(msg.Mounts) {
		return MountsMessage{}, nil, fmt.Errorf("takeover: expected %d fds (lock+service+%d mounts), got %d", 2+len(msg.Mounts), len(msg.Mounts), len(fds))
	}

	if err := writeFrame(c.conn, MsgAck, struct{}{}); err != nil {
		return MountsMessage{}, nil, fmt.Errorf("takeover: acknowledging handoff: %w", err)
	}
	return msg, fds, nil
}
