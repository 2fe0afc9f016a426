package pidfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpsertWritesToConfiguredPathNotEntryText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c8ylp.pid")

	e := Entry{URL: "https://example.com", Device: "dev-1", Config: "Passthrough", User: "admin"}
	if err := Upsert(path, e); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected pidfile at configured path, got: %v", err)
	}

	// The bug being fixed (spec §9a) would have created a file whose name
	// IS the entry text, in the current directory.
	buggyName := filepath.Join(dir, Entry{PID: os.Getpid(), URL: e.URL, Device: e.Device, Config: e.Config, User: e.User}.Text())
	if _, err := os.Stat(buggyName); err == nil {
		t.Fatalf("pidfile was written using entry text as a filename: %s", buggyName)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), e.URL) {
		t.Errorf("pidfile missing entry: %s", raw)
	}
}

func TestCleanRemovesOnlyMatchingPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c8ylp.pid")

	content := "99999999,https://a.example.com,dev-a,Passthrough,admin\n" +
		"99999998,https://b.example.com,dev-b,Passthrough,admin\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Clean(path, 99999999); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "99999999") {
		t.Errorf("expected matching PID to be removed: %s", raw)
	}
	if !strings.Contains(string(raw), "99999998") {
		t.Errorf("expected other PID to survive: %s", raw)
	}
}

func TestCleanRemovesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c8ylp.pid")
	if err := os.WriteFile(path, []byte("42,https://a.example.com,dev,Passthrough,admin\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Clean(path, 42); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected pidfile to be removed once empty, err=%v", err)
	}
}
