package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoHub is an in-memory remote-access endpoint for testing: it accepts
// one WebSocket connection per device/config path and echoes every inbound
// binary frame back, tagged so tests can distinguish connections across a
// reconnect.
type echoHub struct {
	mu        sync.Mutex
	accepts   int
	reject401 bool
	conns     []*websocket.Conn
}

func (h *echoHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.reject401 {
		h.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	h.accepts++
	gen := h.accepts
	h.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		reply := append([]byte{byte(gen), ':'}, data...)
		if err := conn.Write(ctx, websocket.MessageBinary, reply); err != nil {
			return
		}
	}
}

func (h *echoHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.Close(websocket.StatusGoingAway, "test shutdown")
	}
}

func startEchoHub(t *testing.T) (*echoHub, string) {
	t.Helper()
	hub := &echoHub{}
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.closeAll()
		srv.Close()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return hub, wsURL
}

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:       baseURL,
		DeviceID:      "device-1",
		ConfigID:      "Passthrough",
		MaxReconnects: 3,
	})
}

func TestClient_ConnectAndEcho(t *testing.T) {
	t.Parallel()

	_, wsURL := startEchoHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	client := newTestClient(wsURL)
	client.SetCallbacks(func(b []byte) { received <- b }, func() {})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.WaitOpen(time.Second) {
		t.Fatal("client never reached Open")
	}

	client.SendBinary(ctx, []byte("hello"))

	select {
	case msg := <-received:
		if string(msg) != "1:hello" {
			t.Fatalf("got %q, want %q", msg, "1:hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	hub, wsURL := startEchoHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan []byte, 4)
	client := newTestClient(wsURL)
	client.SetCallbacks(func(b []byte) { received <- b }, func() {})

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.WaitOpen(time.Second) {
		t.Fatal("client never reached Open")
	}

	hub.closeAll()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if client.IsOpen() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !client.IsOpen() {
		t.Fatal("client never reconnected")
	}

	client.SendBinary(ctx, []byte("again"))
	select {
	case msg := <-received:
		if !strings.HasSuffix(string(msg), ":again") {
			t.Fatalf("got %q, want suffix %q", msg, ":again")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for post-reconnect echo")
	}
}

func TestClient_401IsFatalNotRetried(t *testing.T) {
	t.Parallel()

	hub, wsURL := startEchoHub(t)
	hub.reject401 = true

	client := newTestClient(wsURL)
	client.SetCallbacks(func([]byte) {}, func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Connect(ctx)
	if err == nil {
		t.Fatal("expected error from 401 handshake")
	}
	if client.State() != Closed {
		t.Fatalf("state = %v, want Closed", client.State())
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	_, wsURL := startEchoHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := newTestClient(wsURL)
	client.SetCallbacks(func([]byte) {}, func() {})
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.WaitOpen(time.Second) {
		t.Fatal("client never reached Open")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if client.State() != Closed {
		t.Fatalf("state = %v, want Closed", client.State())
	}
}
