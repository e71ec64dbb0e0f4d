package ipc

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

const callTimeout = 30 * time.Second

// Dial connects to the daemon socket at path.
func Dial(path string) (*Conn, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon not running (start with `clipsync daemon` or `clipsync install`)")
	}
	conn, err := net.DialTimeout("unix", path, callTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", path, err)
	}
	return NewConn(conn), nil
}

// Call dials the daemon, sends one request, and returns its response.
func Call(path string, req protocol.Request) (protocol.Response, error) {
	c, err := Dial(path)
	if err != nil {
		return protocol.Response{}, err
	}
	defer c.Close()

	if err := c.WriteRequest(req); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}
	c.SetReadDeadline(callTimeout)
	resp, err := c.ReadResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
