//go:build windows

package pidfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// isActive reports whether pid refers to a live process by attempting to
// open a query handle to it — Windows has no kill(pid, 0) probe.
func isActive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == windows.STILL_ACTIVE
}

func terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func kill(pid int) error {
	return terminate(pid)
}
