//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package ddp

import "syscall"

// The Go runtime already enables SO_BROADCAST on UDP sockets, and there is
// no SO_REUSEPORT equivalent to set here.
func socketControl(broadcast bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
