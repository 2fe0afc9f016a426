//go:build windows

package coordinator

import (
	"os"
	"syscall"
)

// terminateSignals returns SIGINT only — Windows has no SIGUSR1 (spec
// §4.4 item 2).
func terminateSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
