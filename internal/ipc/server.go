package ipc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

const (
	maxConns    = 16
	idleTimeout = 30 * time.Second
	probeWindow = 500 * time.Millisecond
)

// Request carries one decoded CLI request into the coordinator, together
// with the channel its response must be sent on.
type Request struct {
	Req   protocol.Request
	Reply chan protocol.Response
}

// Server accepts CLI connections on the Unix socket and forwards their
// requests to the coordinator.
type Server struct {
	ln       *net.UnixListener
	path     string
	requests chan<- Request
	sem      chan struct{}
}

// Listen binds the Unix socket at path, handling a stale socket left by a
// crashed daemon: on AddrInUse it probe-connects, and only when nothing is
// listening (and the path really is a socket) does it unlink and rebind.
// The socket mode is forced to 0600 immediately after binding.
func Listen(path string, requests chan<- Request) (*Server, error) {
	ln, err := bind(path)
	if err != nil {
		if !isAddrInUse(err) {
			return nil, err
		}
		// AddrInUse: is a daemon actually listening?
		probe, perr := net.DialTimeout("unix", path, probeWindow)
		if perr == nil {
			probe.Close()
			return nil, fmt.Errorf("another daemon is already running (socket %s is active)", path)
		}
		st, serr := os.Lstat(path)
		if serr != nil {
			return nil, fmt.Errorf("stat stale socket: %w", serr)
		}
		if st.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("refusing to remove %s: not a socket", path)
		}
		slog.Info("removing stale socket", "path", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		ln, err = bind(path)
		if err != nil {
			return nil, err
		}
	}
	return &Server{
		ln:       ln,
		path:     path,
		requests: requests,
		sem:      make(chan struct{}, maxConns),
	}, nil
}

func bind(path string) (*net.UnixListener, error) {
	addr := &net.UnixAddr{Name: path, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// Path returns the bound socket path.
func (s *Server) Path() string { return s.path }

// Close stops accepting connections. The socket file itself is unlinked by
// the coordinator on shutdown.
func (s *Server) Close() error {
	s.ln.SetUnlinkOnClose(false)
	return s.ln.Close()
}

// Serve accepts connections until the listener is closed. It returns the
// accept error, or nil if the listener was closed.
func (s *Server) Serve() error {
	slog.Info("socket server listening", "path", s.path)
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(uc *net.UnixConn) {
	defer uc.Close()

	uid, err := peerUID(uc)
	if err != nil {
		slog.Warn("failed to get peer credentials", "err", err)
		return
	}
	if uid != uint32(os.Getuid()) {
		slog.Warn("rejected connection from different uid", "peer_uid", uid, "our_uid", os.Getuid())
		return
	}

	c := NewConn(uc)
	for {
		c.SetReadDeadline(idleTimeout)
		frame, err := c.ReadFrame()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				slog.Debug("connection idle timeout")
			} else if !errors.Is(err, io.EOF) {
				slog.Debug("socket read error", "err", err)
			}
			return
		}
		c.SetReadDeadline(0)

		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			slog.Warn("invalid request", "err", err)
			if werr := c.WriteResponse(protocol.Errorf("invalid request: %v", err)); werr != nil {
				return
			}
			continue
		}
		slog.Debug("received request", "type", req.Type)

		reply := make(chan protocol.Response, 1)
		s.requests <- Request{Req: req, Reply: reply}

		resp, ok := <-reply
		if !ok {
			return
		}
		if err := c.WriteResponse(resp); err != nil {
			return
		}
	}
}
