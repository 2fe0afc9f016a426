//go:build windows

package localserver

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// listenTCPReuseAddr binds a TCP listener with SO_REUSEADDR set, mirroring
// the Unix variant (reuseaddr_unix.go) via golang.org/x/sys/windows instead
// of golang.org/x/sys/unix.
func listenTCPReuseAddr(bindAddress string, port int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			controlErr := c.Control(func(fd uintptr) {
				sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
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
