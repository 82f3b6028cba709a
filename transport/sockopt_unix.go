//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl returns a dialer and listener hook that disables Nagle and,
// when bufferSize is positive, sets both kernel socket buffers.
func socketControl(bufferSize int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sysErr error
		err := c.Control(func(fd uintptr) {
			if bufferSize > 0 {
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufferSize)
				if sysErr != nil {
					return
				}
				sysErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufferSize)
				if sysErr != nil {
					return
				}
			}
			sysErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		})
		if err != nil {
			return err
		}
		return sysErr
	}
}
