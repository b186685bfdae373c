//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr is installed as the net.ListenConfig.Control callback
// when Config.ReuseAddr is set. It mirrors the SO_REUSEADDR setsockopt
// call the original uvgRTP leaves commented out in
// media_stream.cc's init_connection.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
