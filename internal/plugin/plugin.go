// Package plugin implements C10, plugin dispatch (spec §4.4 item 5, §9
// "Dynamic plugin loading"): discovery of external `.sh`/executable
// plugins and the argv/environment shaping needed to launch them.
//
// Grounded on the Python plugin CLI (original_source/c8ylp/cli/plugin.py:
// plugin_folders, format_wsl_path, build_cmd_args). Per spec §9, the
// source's dynamic Python-eval plugin mode is deliberately dropped — only
// the external-executable surface is reimplemented, in the teacher's
// os/exec idiom (cmd/bamgate/cmd_up.go's exec.Command usage for systemctl
// and launchctl) rather than the source's subprocess.call.
package plugin

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// DefaultPluginDir is the fallback plugin search directory when
// C8YLP_PLUGINS is unset (spec §6.4).
const DefaultPluginDir = "~/.c8ylp/plugins"

// SearchDirs returns the plugin directories to search, honoring
// C8YLP_PLUGINS (OS path-list-separator-delimited, spec §6.4).
func SearchDirs() []string {
	var dirs []string
	raw := os.Getenv("C8YLP_PLUGINS")
	if raw == "" {
		raw = DefaultPluginDir
	}
	for _, part := range strings.Split(raw, string(os.PathListSeparator)) {
		if part == "" {
			continue
		}
		dirs = append(dirs, expandHome(part))
	}
	return dirs
}

// Find locates a plugin named name (with or without a .sh suffix) in the
// configured search directories. Returns "" if not found.
func Find(name string) string {
	candidates := []string{name}
	if !strings.HasSuffix(name, ".sh") {
		candidates = append(candidates, name+".sh")
	}

	for _, dir := range SearchDirs() {
		for _, candidate := range candidates {
			full := filepath.Join(dir, candidate)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				return full
			}
		}
	}
	return ""
}

var driveLetterPath = regexp.MustCompile(`(?i)^[a-z]:/`)

// formatWSLPath converts a Windows path to its WSL mount-point form, e.g.
// `C:\my\script.sh` -> `/mnt/c/my/script.sh` (spec §4.4 item 5).
func formatWSLPath(path string) string {
	out := strings.ReplaceAll(path, `\`, "/")
	if driveLetterPath.MatchString(out) {
		drive := strings.ToLower(out[:1])
		rest := out[2:]
		out = "/mnt/" + drive + rest
	}
	return out
}

// BuildArgv composes the argv used to launch a plugin script, honoring
// C8YLP_SHELL and rewriting the script path for WSL bash on Windows (spec
// §4.4 item 5).
func BuildArgv(scriptPath string, extraArgs []string) []string {
	args := append([]string{scriptPath}, extraArgs...)
	customShell := os.Getenv("C8YLP_SHELL")

	if runtime.GOOS != "windows" {
		if customShell == "" {
			// Rely on the script's shebang.
			return args
		}
		return append([]string{customShell}, args...)
	}

	shell := customShell
	if shell == "" {
		shell = "bash"
	}

	lower := strings.ToLower(shell)
	if strings.Contains(lower, "wsl") || strings.Contains(lower, `\windows\system32\bash.exe`) {
		args[0] = formatWSLPath(args[0])
	}

	return append([]string{shell}, args...)
}

// ExpandArgs expands $VAR/${VAR} references in each argument from the
// current process environment (spec §4.4 item 5: "command/plugin: expand
// $VAR in each argument").
func ExpandArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = os.Expand(a, os.Getenv)
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
