//go:build !windows

package pidfile

import "syscall"

// isActive reports whether pid refers to a live process, using the
// kill(pid, 0) probe idiom.
func isActive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
