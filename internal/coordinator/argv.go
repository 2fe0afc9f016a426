package coordinator

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/plugin"
)

// BuildSSHArgv composes the fixed ssh invocation (spec §4.4 item 5). It
// resolves the ssh binary on PATH and fails fast with SSHNotFound if
// absent, rather than deferring that failure into exec.Cmd.Run (spec §8
// scenario S3: "no WebSocket is dialed" — callers invoke this before
// Coordinator.Run starts the session).
func BuildSSHArgv(port int, sshUser string, remoteCommands []string) ([]string, error) {
	sshPath, err := exec.LookPath("ssh")
	if err != nil {
		return nil, exitcode.Wrap(exitcode.SSHNotFound, "ssh binary not found on PATH")
	}

	argv := []string{
		sshPath,
		"-o", "ServerAliveInterval=120",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-p", fmt.Sprintf("%d", port),
		fmt.Sprintf("%s@localhost", sshUser),
	}
	return append(argv, remoteCommands...), nil
}

// BuildCommandArgv composes a command/plugin invocation: $VAR-expand
// every argument, then resolve argv[0] via PATH, falling back to
// `bash -c "<joined args>"` if argv[0] isn't directly executable, and
// finally failing with CommandNotFound if bash is absent too (spec §4.4
// item 5).
func BuildCommandArgv(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, exitcode.Wrap(exitcode.CommandNotFound, "no command given")
	}

	expanded := plugin.ExpandArgs(args)

	if _, err := exec.LookPath(expanded[0]); err == nil {
		return expanded, nil
	}

	bashPath, err := exec.LookPath("bash")
	if err != nil {
		return nil, exitcode.Wrap(exitcode.CommandNotFound, "command %q not found and bash is unavailable for fallback", expanded[0])
	}
	return []string{bashPath, "-c", strings.Join(expanded, " ")}, nil
}

// BuildPluginArgv composes a plugin-script invocation: resolve the plugin
// by name, then shape argv per platform/shell via plugin.BuildArgv (spec
// §4.4 item 5, §9 "Dynamic plugin loading").
func BuildPluginArgv(name string, extraArgs []string) ([]string, error) {
	scriptPath := plugin.Find(name)
	if scriptPath == "" {
		return nil, exitcode.Wrap(exitcode.PluginNotFound, "plugin %q not found", name)
	}
	return plugin.BuildArgv(scriptPath, plugin.ExpandArgs(extraArgs)), nil
}
