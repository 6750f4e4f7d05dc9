package privhelper

import (
	"fmt"
	"net"
	"os"
)

// Client is the unprivileged monofsd process's handle onto the
// privileged helper connection.
type Client struct {
	conn *net.UnixConn
}

// NewClient wraps an already-connected socket endpoint, typically the
// local half of a socketpair created before forking the helper.
func NewClient(conn *net.UnixConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) roundTrip(t MessageType, req interface{}) (Response, []int, error) {
	if err := writeMessage(c.conn, t, req); err != nil {
		return Response{}, nil, err
	}
	msg, fds, err := readMessage(c.conn)
	if err != nil {
		return Response{}, nil, err
	}
	if msg.Type != MsgResponse {
		return Response{}, nil, fmt.Errorf("privhelper: expected response, got %s", msg.Type)
	}
	var resp Response
	if err := decodeResponse(msg.Payload, &resp); err != nil {
		return Response{}, nil, err
	}
	if !resp.Ok {
		return resp, nil, fmt.Errorf("privhelper: %s: %s", t, resp.Error)
	}
	return resp, fds, nil
}

// FuseMount asks the helper to open and mount /dev/fuse at mountPath,
// returning the fuse file descriptor as an *os.File.
func (c *Client) FuseMount(mountPath string, readOnly bool) (*os.File, error) {
	_, fds, err := c.roundTrip(MsgFuseMount, FuseMountRequest{MountPath: mountPath, ReadOnly: readOnly})
	if err != nil {
		return nil, err
	}
	if len(fds) != 1 {
		return nil, fmt.Errorf("privhelper: FuseMount expected one fd, got %d", len(fds))
	}
	return os.NewFile(uintptr(fds[0]), "/dev/fuse"), nil
}

// FuseUnmount asks the helper to unmount mountPath.
func (c *Client) FuseUnmount(mountPath string) error {
	_, _, err := c.roundTrip(MsgFuseUnmount, FuseUnmountRequest{MountPath: mountPath})
	return err
}

// BindMount asks the helper to bind-mount source onto target.
func (c *Client) BindMount(source, target string) error {
	_, _, err := c.roundTrip(MsgBindMount, BindMountRequest{Source: source, Target: target})
	return err
}

// FuseTakeoverShutdown tells the helper this process is about to exec
// its successor; the fuse fd stays open and will be inherited.
func (c *Client) FuseTakeoverShutdown(mountPath string) error {
	_, _, err := c.roundTrip(MsgFuseTakeoverShutdown, FuseTakeoverShutdownRequest{MountPath: mountPath})
	return err
}

// FuseTakeoverStartup tells the helper that this process has resumed
// serving mountPath's fuse connection after an exec-based graceful
// restart; the helper only logs and acknowledges it.
func (c *Client) FuseTakeoverStartup(mountPath string) error {
	_, _, err := c.roundTrip(MsgFuseTakeoverStartup, FuseTakeoverStartupRequest{MountPath: mountPath})
	return err
}

// SetLogFile asks the helper to reopen its log output at path.
func (c *Client) SetLogFile(path string) error {
	_, _, err := c.roundTrip(MsgSetLogFile, SetLogFileRequest{Path: path})
	return err
}
