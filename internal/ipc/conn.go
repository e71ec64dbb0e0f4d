// Package ipc implements the local control channel between the CLI and the
// daemon: a Unix domain stream socket carrying length-delimited JSON frames.
//
// Wire format, both directions:
//
//	[ 4-byte big-endian length ][ JSON payload ]
//
// The length covers the payload only and is capped at protocol.MaxFrameSize.
// The daemon side (Server) accepts at most maxConns concurrent clients and
// rejects peers whose UID differs from its own.
package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/clipsync-dev/clipsync/internal/protocol"
)

// Conn wraps a net.Conn with buffered length-prefixed framing.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
}

// NewConn wraps conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, br: bufio.NewReaderSize(conn, 64*1024)}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// SetReadDeadline sets or clears the read deadline.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// ReadFrame reads one length-prefixed frame payload.
func (c *Conn) ReadFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > protocol.MaxFrameSize {
		return nil, fmt.Errorf("frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes one length-prefixed frame.
func (c *Conn) WriteFrame(payload []byte) error {
	if len(payload) > protocol.MaxFrameSize {
		return fmt.Errorf("frame too large (%d bytes)", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(payload)
	return err
}

// WriteResponse encodes and writes a protocol response.
func (c *Conn) WriteResponse(resp protocol.Response) error {
	b, err := protocol.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return c.WriteFrame(b)
}

// WriteRequest encodes and writes a protocol request.
func (c *Conn) WriteRequest(req protocol.Request) error {
	b, err := protocol.EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.WriteFrame(b)
}

// ReadResponse reads and decodes a protocol response.
func (c *Conn) ReadResponse() (protocol.Response, error) {
	b, err := c.ReadFrame()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(b)
}
