package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/supervisor"
)

type echoHub struct{}

func (echoHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return
		}
	}
}

func TestCoordinator_RunExportsEnvAndPropagatesExitCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoHub{})
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	proxyCfg := cfg.Defaults()
	proxyCfg.BindAddress = "127.0.0.1"
	proxyCfg.Host = "https://example.c8y.io"
	proxyCfg.Device = "ext-device-01"
	proxyCfg.ReadinessWaitTimeout = 2 * time.Second

	c := New(proxyCfg, supervisor.Binding{BaseURL: wsURL, DeviceID: "ext-device-01", ConfigID: "Passthrough"}, cfg.SessionCredentials{}, nil)

	got := c.Run(context.Background(), Subcommand{Argv: []string{"sh", "-c", `test "$DEVICE" = "ext-device-01" && exit 99`}})
	if got != exitcode.Code(99) {
		t.Fatalf("got exit code %v, want 99", got)
	}
	if os.Getenv("DEVICE") != "ext-device-01" {
		t.Fatalf("DEVICE env not exported")
	}
	if os.Getenv("C8Y_HOST") != "https://example.c8y.io" {
		t.Fatalf("C8Y_HOST env not exported")
	}
	if _, err := strconv.Atoi(os.Getenv("PORT")); err != nil {
		t.Fatalf("PORT env not a number: %v", os.Getenv("PORT"))
	}
}

func TestCoordinator_CommandNotFoundWithNoArgv(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoHub{})
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	proxyCfg := cfg.Defaults()
	proxyCfg.BindAddress = "127.0.0.1"

	c := New(proxyCfg, supervisor.Binding{BaseURL: wsURL, DeviceID: "d", ConfigID: "Passthrough"}, cfg.SessionCredentials{}, nil)

	got := c.Run(context.Background(), Subcommand{})
	if got != exitcode.CommandNotFound {
		t.Fatalf("got %v, want CommandNotFound", got)
	}
}

func TestBuildSSHArgv_MissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := BuildSSHArgv(1234, "admin", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if exitcode.From(err) != exitcode.SSHNotFound {
		t.Fatalf("got exit code %v, want SSHNotFound", exitcode.From(err))
	}
}

func TestBuildCommandArgv_FallsBackToBash(t *testing.T) {
	got, err := BuildCommandArgv([]string{"this-binary-does-not-exist-anywhere", "arg1"})
	if err != nil {
		t.Fatalf("BuildCommandArgv() error = %v", err)
	}
	if len(got) < 2 || !strings.HasSuffix(got[0], "bash") || got[1] != "-c" {
		t.Fatalf("got %v, want a bash -c fallback", got)
	}
}

func TestCoordinator_PluginCommandInjectsDeviceAndPort(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoHub{})
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	proxyCfg := cfg.Defaults()
	proxyCfg.BindAddress = "127.0.0.1"
	proxyCfg.Device = "ext-device-01"
	proxyCfg.ReadinessWaitTimeout = 2 * time.Second

	c := New(proxyCfg, supervisor.Binding{BaseURL: wsURL, DeviceID: "ext-device-01", ConfigID: "Passthrough"}, cfg.SessionCredentials{}, nil)

	argv, err := BuildCommandArgv([]string{"sh", "-c", `echo "DEVICE=$DEVICE,PORT=$PORT"; exit 99`})
	if err != nil {
		t.Fatalf("BuildCommandArgv() error = %v", err)
	}

	got := c.Run(context.Background(), Subcommand{Argv: argv})
	if got != exitcode.Code(99) {
		t.Fatalf("got exit code %v, want 99", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{
		0:    "00:00:00",
		59:   "00:00:59",
		61:   "00:01:01",
		3661: "01:01:01",
	}
	for secs, want := range cases {
		got := formatDuration(time.Duration(secs) * time.Second)
		if got != want {
			t.Errorf("formatDuration(%ds) = %q, want %q", secs, got, want)
		}
	}
}
