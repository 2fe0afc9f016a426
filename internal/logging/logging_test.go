package logging

import "testing"

func TestRedactMasksMiddle(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"a":         "*",
		"ab":        "*",
		"abc":       "a*c",
		"topsecret": "t*******t",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewFallsBackToConsoleOnUnwritableDir(t *testing.T) {
	logger := New(Config{Dir: "/proc/cannot-write-here-0xdeadbeef", Verbose: true})
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("smoke test")
}
