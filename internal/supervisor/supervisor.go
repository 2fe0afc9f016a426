// Package supervisor implements C3, the Session Supervisor (spec §4.3):
// the top-level orchestrator that wires the Local Stream Server (C2) to the
// Upstream WS Client (C1) and owns the readiness/shutdown lifecycle a
// caller (C4, or a direct CLI invocation) drives.
//
// It is grounded on the teacher's internal/agent.Agent — same "own the
// child components, wire callbacks between them, expose Run(ctx) that
// blocks until shutdown" shape (internal/agent/agent.go) — generalized
// from TUN+WireGuard+signaling+WebRTC wiring to local-socket+WebSocket
// wiring.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/localserver"
	"github.com/softwareag/c8ylp/internal/wsclient"
)

// Binding names the device and remote-access configuration a session
// connects to, as resolved by C5.
type Binding struct {
	BaseURL  string
	DeviceID string
	ConfigID string
}

// Supervisor is C3 (spec §4.3).
type Supervisor struct {
	cfg     cfg.ProxyConfig
	binding Binding
	creds   cfg.SessionCredentials
	log     *slog.Logger

	server *localserver.Server
	client *wsclient.Client

	shutdownOnce sync.Once
	stopped      chan struct{}
}

// New constructs a Supervisor. Start must be called before ServeForever.
func New(c cfg.ProxyConfig, binding Binding, creds cfg.SessionCredentials, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:     c,
		binding: binding,
		creds:   creds,
		log:     logger.With("component", "supervisor"),
		stopped: make(chan struct{}),
	}
}

// Start wires C1 and C2 together, starts the local listener, and dials
// upstream. It returns the assigned local port (0 for the Unix-domain-
// socket variant).
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.client = wsclient.New(wsclient.Config{
		BaseURL:         s.binding.BaseURL,
		DeviceID:        s.binding.DeviceID,
		ConfigID:        s.binding.ConfigID,
		Credentials:     s.creds,
		IgnoreTLSVerify: s.cfg.IgnoreTLSVerify,
		PingInterval:    s.cfg.PingInterval,
		MaxReconnects:   s.cfg.MaxReconnects,
		Logger:          s.log,
	})

	s.server = localserver.New(localserver.Config{
		BindAddress: s.cfg.BindAddress,
		Port:        s.cfg.Port,
		SocketPath:  s.cfg.SocketPath,
		BufferSize:  s.cfg.TCPBufferSize,
		IdleTimeout: s.cfg.TCPIdleTimeout,
		Logger:      s.log,
	})

	// Local bytes flow upstream; upstream bytes flow to whichever local
	// connection is currently active (spec §4.3 "wiring").
	s.server.SetCallback(func(ctx context.Context, data []byte) {
		s.client.SendBinary(ctx, data)
	})
	s.client.SetCallbacks(
		func(data []byte) { s.server.WriteOutbound(data) },
		func() { s.Shutdown() },
	)

	if err := s.client.Connect(ctx); err != nil {
		return 0, err
	}
	if !s.client.WaitOpen(10 * time.Second) {
		return 0, exitcode.Wrap(exitcode.TimeoutWaitForPort, "upstream websocket did not open in time")
	}

	port, err := s.server.Start()
	if err != nil {
		_ = s.client.Close()
		return 0, fmt.Errorf("starting local server: %w", err)
	}

	s.log.Info("session ready", "device", s.binding.DeviceID, "port", port, "success", true)
	return port, nil
}

// ServeForever blocks until readySignal has been satisfied by Start's
// caller and the session is shut down (via Shutdown, a fatal upstream
// close, or ctx cancellation), returning the process exit code to use.
func (s *Supervisor) ServeForever(ctx context.Context) exitcode.Code {
	go s.server.ServeForever(ctx)

	select {
	case <-ctx.Done():
		s.Shutdown()
		return exitcode.OK
	case <-s.stopped:
		return exitcode.OK
	}
}

// Shutdown idempotently tears down both C1 and C2.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutting down session")
		if s.client != nil {
			_ = s.client.Close()
		}
		if s.server != nil {
			_ = s.server.Shutdown()
		}
		close(s.stopped)
	})
}

// WaitRunning blocks until the local listener is serving, or timeout
// elapses.
func (s *Supervisor) WaitRunning(timeout time.Duration) bool {
	if s.server == nil {
		return false
	}
	return s.server.WaitRunning(timeout)
}
