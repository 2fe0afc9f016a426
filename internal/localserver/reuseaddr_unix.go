//go:build !windows

package localserver

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenTCPReuseAddr binds a TCP listener with SO_REUSEADDR set, so a
// restart can rebind the same port immediately (spec §4.2). The raw-fd
// control callback mirrors the teacher's protectedNet.protectConn idiom
// (internal/agent/protectednet.go), substituting a setsockopt call for the
// VPN-protect call.
func listenTCPReuseAddr(bindAddress string, port int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			controlErr := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if controlErr != nil {
				return controlErr
			}
			return sockErr
		},
	}
	addr := fmt.Sprintf("%s:%d", bindAddress, port)
	return lc.Listen(context.Background(), "tcp", addr)
}
