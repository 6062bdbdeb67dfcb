// Package transport owns the stream connection to a simulation server.
//
// Ownership boundary:
// - connect with an optional bound on the connect attempt
// - 4-byte request opcodes out
// - packet-framed replies in, reassembled into one buffer
// - non-consuming liveness checks
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/simview/internal/logging"
	"github.com/danmuck/simview/internal/protocol"
	"github.com/danmuck/simview/internal/protocol/frame"
)

var ErrClosed = fmt.Errorf("%w: connection closed", protocol.ErrTransport)

// Conn exclusively owns one stream socket.
type Conn struct {
	conn   net.Conn
	br     *bufio.Reader
	cfg    Config
	buf    []byte
	reply  protocol.Reader
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// Dial connects to address:port. A zero cfg.ConnectTimeout blocks until ctx
// ends; a positive one bounds only the connect attempt.
func Dial(ctx context.Context, address string, port int, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	target := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", protocol.ErrTransport, target, err)
	}
	logging.Debugf("transport.Conn dial addr=%s", target)
	return NewConn(raw, cfg), nil
}

// NewConn wraps an established stream.
func NewConn(c net.Conn, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	return &Conn{
		conn: c,
		br:   bufio.NewReaderSize(c, cfg.Limits.PacketSize),
		cfg:  cfg,
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendRequest writes exactly the 4-byte opcode.
func (c *Conn) SendRequest(req protocol.Request) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.conn.Write(protocol.EncodeRequest(req)); err != nil {
		return fmt.Errorf("%w: send %s: %w", protocol.ErrTransport, req, err)
	}
	return nil
}

// ReadReply blocks until one full reply is reassembled and returns its
// logical byte count. Zero means the peer closed before a reply arrived.
func (c *Conn) ReadReply() (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	out, err := frame.ReadReply(c.br, c.buf, c.cfg.Limits)
	c.buf = out
	if errors.Is(err, io.EOF) {
		c.reply.Reset(nil)
		return 0, nil
	}
	if err != nil {
		c.reply.Reset(nil)
		return 0, fmt.Errorf("%w: read reply: %w", protocol.ErrTransport, err)
	}
	c.reply.Reset(out)
	return len(out), nil
}

// Reply returns the cursor over the last reassembled reply.
func (c *Conn) Reply() *protocol.Reader {
	return &c.reply
}

// IsAlive reports whether the peer is still connected without consuming data.
func (c *Conn) IsAlive() bool {
	if c.isClosed() {
		return false
	}
	if c.br.Buffered() > 0 {
		return true
	}
	if closed, ok := peekClosed(c.conn); ok {
		return !closed
	}
	return c.peekWithDeadline()
}

// peekWithDeadline peeks through the buffered reader under a short read
// deadline. A timeout means alive; any peeked byte stays buffered.
func (c *Conn) peekWithDeadline() bool {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PeekWait)); err != nil {
		return false
	}
	_, err := c.br.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.conn.Close()
		logging.Debugf("transport.Conn close addr=%s", c.conn.RemoteAddr())
	})
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
