//go:build !unix

package transport

import "syscall"

// socketControl keeps the platform defaults. Go enables TCP_NODELAY on its own.
func socketControl(int) func(network, address string, c syscall.RawConn) error {
	return nil
}
