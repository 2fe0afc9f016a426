//go:build !windows

package coordinator

import (
	"os"
	"syscall"
)

// terminateSignals returns SIGINT and SIGUSR1 (spec §4.4 item 2).
func terminateSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1}
}
