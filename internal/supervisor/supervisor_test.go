package supervisor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/softwareag/c8ylp/internal/cfg"
)

// echoHub accepts one WebSocket connection and echoes every binary frame
// back unchanged, standing in for the remote-access endpoint.
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

func TestSupervisor_StartWiresLocalAndUpstream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoHub{})
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	proxyCfg := cfg.Defaults()
	proxyCfg.BindAddress = "127.0.0.1"
	proxyCfg.Port = 0

	sup := New(proxyCfg, Binding{BaseURL: wsURL, DeviceID: "device-1", ConfigID: "Passthrough"}, cfg.SessionCredentials{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := sup.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if port == 0 {
		t.Fatal("expected a non-zero port")
	}
	defer sup.Shutdown()

	go sup.ServeForever(ctx)
	if !sup.WaitRunning(time.Second) {
		t.Fatal("local server never reported running")
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("roundtrip")); err != nil {
		t.Fatalf("write error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if string(buf[:n]) != "roundtrip" {
		t.Fatalf("got %q, want %q", buf[:n], "roundtrip")
	}
}

func TestSupervisor_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoHub{})
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	proxyCfg := cfg.Defaults()
	proxyCfg.BindAddress = "127.0.0.1"

	sup := New(proxyCfg, Binding{BaseURL: wsURL, DeviceID: "device-1", ConfigID: "Passthrough"}, cfg.SessionCredentials{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := sup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sup.Shutdown()
	sup.Shutdown()
}
