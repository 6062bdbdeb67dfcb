//go:build !unix

package transport

import "net"

func peekClosed(net.Conn) (closed bool, ok bool) {
	return false, false
}
