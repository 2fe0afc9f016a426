package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFind_LocatesShScriptInSearchDir(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "deploy.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("C8YLP_PLUGINS", dir)

	got := Find("deploy")
	if got != scriptPath {
		t.Fatalf("Find() = %q, want %q", got, scriptPath)
	}
}

func TestFind_ReturnsEmptyWhenMissing(t *testing.T) {
	t.Setenv("C8YLP_PLUGINS", t.TempDir())
	if got := Find("does-not-exist"); got != "" {
		t.Fatalf("Find() = %q, want empty", got)
	}
}

func TestFormatWSLPath(t *testing.T) {
	cases := map[string]string{
		`C:\my\script.sh`:  "/mnt/c/my/script.sh",
		`d:\tools\x.sh`:    "/mnt/d/tools/x.sh",
		"/already/unix.sh": "/already/unix.sh",
	}
	for in, want := range cases {
		if got := formatWSLPath(in); got != want {
			t.Errorf("formatWSLPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandArgs(t *testing.T) {
	t.Setenv("DEVICE", "ext-device-01")
	t.Setenv("PORT", "2223")

	got := ExpandArgs([]string{"echo", "$DEVICE:${PORT}"})
	want := []string{"echo", "ext-device-01:2223"}
	if got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ExpandArgs() = %v, want %v", got, want)
	}
}
