//go:build unix

package transport

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peekClosed does a non-blocking MSG_PEEK on the socket. ok is false when the
// connection does not expose a file descriptor.
func peekClosed(c net.Conn) (closed bool, ok bool) {
	sc, isSys := c.(syscall.Conn)
	if !isSys {
		return false, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return false, false
	}
	var (
		n    int
		perr error
		buf  [1]byte
	)
	err = raw.Read(func(fd uintptr) bool {
		n, _, perr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return true, true
	}
	if perr != nil {
		if errors.Is(perr, unix.EAGAIN) || errors.Is(perr, unix.EWOULDBLOCK) || errors.Is(perr, unix.EINTR) {
			return false, true
		}
		return true, true
	}
	return n == 0, true
}
