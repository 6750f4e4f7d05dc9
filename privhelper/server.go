package privhelper

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/monofs/monofs/monofslog"
	"golang.org/x/sys/unix"
)

// Server runs in the privileged process, servicing one client
// connection (normally the unprivileged monofsd process) for the
// lifetime of the mount.
type Server struct {
	conn *net.UnixConn
}

// NewServer wraps an already-connected socket pair endpoint (typically
// inherited at fork, per the teacher's exec-based helper invocation
// generalized to a persistent peer).
func NewServer(conn *net.UnixConn) *Server {
	return &Server{conn: conn}
}

// Serve processes requests until the connection is closed or a fatal
// protocol error occurs.
func (s *Server) Serve() error {
	for {
		msg, fds, err := readMessage(s.conn)
		if err != nil {
			return err
		}
		for _, fd := range fds {
			unix.Close(fd) // the server never expects fds from the client today
		}

		if err := s.handle(msg); err != nil {
			monofslog.Warnf("privhelper: request %s failed: %v", msg.Type, err)
		}
	}
}

func (s *Server) handle(msg message) error {
	switch msg.Type {
	case MsgFuseMount:
		return s.handleFuseMount(msg.Payload)
	case MsgFuseUnmount:
		return s.handleFuseUnmount(msg.Payload)
	case MsgBindMount:
		return s.handleBindMount(msg.Payload)
	case MsgFuseTakeoverShutdown:
		return s.respondOk()
	case MsgFuseTakeoverStartup:
		return s.handleFuseTakeoverStartup(msg.Payload)
	case MsgSetLogFile:
		return s.handleSetLogFile(msg.Payload)
	default:
		return s.respondError(fmt.Errorf("unknown message type %s", msg.Type))
	}
}

func (s *Server) respondOk() error {
	return writeMessage(s.conn, MsgResponse, Response{Ok: true})
}

func (s *Server) respondError(err error) error {
	werr := writeMessage(s.conn, MsgResponse, Response{Ok: false, Error: err.Error()})
	if werr != nil {
		return werr
	}
	return err
}

func (s *Server) handleFuseMount(payload []byte) error {
	var req FuseMountRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.respondError(err)
	}

	f, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return s.respondError(fmt.Errorf("opening /dev/fuse: %w", err))
	}
	defer f.Close()

	data := fmt.Sprintf("fd=%d,rootmode=40000,user_id=%d,group_id=%d", f.Fd(), os.Getuid(), os.Getgid())
	if req.ReadOnly {
		data += ",ro"
	}
	if err := unix.Mount("monofs", req.MountPath, "fuse", 0, data); err != nil {
		return s.respondError(fmt.Errorf("mounting fuse at %s: %w", req.MountPath, err))
	}

	buf, err := encode(MsgResponse, Response{Ok: true})
	if err != nil {
		return err
	}
	_, _, err = s.conn.WriteMsgUnix(buf, unix.UnixRights(int(f.Fd())), nil)
	return err
}

func (s *Server) handleFuseUnmount(payload []byte) error {
	var req FuseUnmountRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.respondError(err)
	}
	if err := unix.Unmount(req.MountPath, unix.MNT_DETACH); err != nil {
		return s.respondError(fmt.Errorf("unmounting %s: %w", req.MountPath, err))
	}
	return s.respondOk()
}

func (s *Server) handleBindMount(payload []byte) error {
	var req BindMountRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.respondError(err)
	}
	if err := unix.Mount(req.Source, req.Target, "", unix.MS_BIND, ""); err != nil {
		return s.respondError(fmt.Errorf("bind-mounting %s onto %s: %w", req.Source, req.Target, err))
	}
	return s.respondOk()
}

func (s *Server) handleFuseTakeoverStartup(payload []byte) error {
	// The successor process sends this request over its own new
	// connection to the helper. No fd travels with it: the fuse fd
	// stays with the successor, which inherited it across exec, so the
	// helper only logs and acknowledges resumption.
	var req FuseTakeoverStartupRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.respondError(err)
	}
	monofslog.Infof("privhelper: resuming fuse routing for %s after takeover", req.MountPath)
	return s.respondOk()
}

func (s *Server) handleSetLogFile(payload []byte) error {
	var req SetLogFileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.respondError(err)
	}
	if err := monofslog.InitLogFile(monofslog.FileConfig{Path: req.Path}); err != nil {
		return s.respondError(err)
	}
	// The rotating writer opens its file lazily; logging here creates
	// it at Path before the request is acknowledged.
	monofslog.Infof("privhelper: log output reopened at %s", req.Path)
	return s.respondOk()
}
