// Package localserver implements C2, the Local Stream Server (spec §4.2):
// a single-connection TCP or Unix-domain-socket listener that bridges raw
// bytes between one local client and C1's upstream WebSocket.
//
// It is grounded on the original Python TCPServer
// (original_source/c8ylp/tcp_socket/tcp_server.py) for the accept-one,
// serve-until-drop, restart-on-drop shape, reimplemented with Go's
// net.Listener plus a SO_REUSEADDR dial-out grounded on the teacher's
// internal/agent.protectedNet.protectConn raw-socket-control idiom
// (internal/agent/protectednet.go).
package localserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InboundSink is how the server forwards bytes read from the local client
// upstream (wired to wsclient.Client.SendBinary by C3).
type InboundSink func(ctx context.Context, data []byte)

// Server is C2 (spec §4.2). One Server serves at most one client
// connection at a time; once that connection drops, it accepts the next
// one unless Shutdown has been called.
type Server struct {
	bindAddress string
	port        int
	socketPath  string
	bufferSize  int
	idleTimeout time.Duration

	log *slog.Logger

	onInbound InboundSink

	mu           sync.Mutex
	listener     net.Listener
	assignedPort int
	activeConn   net.Conn
	running      bool
	shutdown     bool

	readyCh   chan struct{}
	readyOnce sync.Once
}

// Config configures a Server.
type Config struct {
	BindAddress string
	// Port is the requested TCP port; 0 asks the OS to assign one.
	Port int
	// SocketPath, when set, selects the Unix-domain-socket variant and
	// BindAddress/Port are ignored (spec §6.2 --socket-path).
	SocketPath string

	BufferSize int
	// IdleTimeout closes the active connection after this much time with
	// no data in either direction. Zero disables the idle timeout.
	IdleTimeout time.Duration

	Logger *slog.Logger
}

// New constructs a Server. OnInboundMessage must be set (via SetCallback)
// before Start.
func New(c Config) *Server {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	bufSize := c.BufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Server{
		bindAddress: c.BindAddress,
		port:        c.Port,
		socketPath:  c.SocketPath,
		bufferSize:  bufSize,
		idleTimeout: c.IdleTimeout,
		log:         log.With("component", "localserver"),
		readyCh:     make(chan struct{}),
	}
}

// SetCallback installs C3's inbound-data callback. Must be called before
// Start.
func (s *Server) SetCallback(onInbound InboundSink) {
	s.onInbound = onInbound
}

// Start binds the listener and returns the assigned port (0 for the
// Unix-domain-socket variant). It does not accept connections; call
// ServeForever for that (spec §4.2 Start/ServeForever split).
func (s *Server) Start() (int, error) {
	var l net.Listener
	var err error

	if s.socketPath != "" {
		l, err = net.Listen("unix", s.socketPath)
	} else {
		l, err = listenTCPReuseAddr(s.bindAddress, s.port)
	}
	if err != nil {
		return 0, fmt.Errorf("starting local server: %w", err)
	}

	s.mu.Lock()
	s.listener = l
	if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok {
		s.assignedPort = tcpAddr.Port
	}
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.readyCh) })

	s.log.Info("local server listening", "address", l.Addr().String())
	return s.assignedPort, nil
}

// WaitRunning blocks until Start has completed (or timeout elapses),
// returning whether the listener is up.
func (s *Server) WaitRunning(timeout time.Duration) bool {
	select {
	case <-s.readyCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ServeForever accepts one connection at a time, serving each to
// completion before accepting the next, until Shutdown is called (spec
// §4.2 "accept one at a time, restart on drop").
func (s *Server) ServeForever(ctx context.Context) {
	for {
		s.mu.Lock()
		l := s.listener
		done := s.shutdown
		s.mu.Unlock()
		if done || l == nil {
			return
		}

		s.log.Info("waiting for local client connection")
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.shutdown
			s.mu.Unlock()
			if shuttingDown {
				return
			}
			s.log.Error("accept failed", "error", err)
			continue
		}

		s.serveConn(ctx, conn)
	}
}

// serveConn pumps bytes from conn to onInbound until it errors, EOFs, or
// Shutdown is called.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	log := s.log.With("connection", connID, "remote", conn.RemoteAddr().String())
	log.Info("local client connected")

	s.mu.Lock()
	s.activeConn = conn
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.activeConn = nil
		s.running = false
		s.mu.Unlock()
		_ = conn.Close()
		log.Info("local client disconnected")
	}()

	buf := make([]byte, s.bufferSize)
	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 && s.onInbound != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.onInbound(ctx, data)
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("local connection read ended", "error", err)
			}
			return
		}
	}
}

// WriteOutbound writes a frame received from the upstream WebSocket to the
// currently-active local connection, if any (spec §4.2 "Outbound data
// path": frames arriving with no active connection are dropped).
func (s *Server) WriteOutbound(data []byte) {
	s.mu.Lock()
	conn := s.activeConn
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.log.Debug("dropping outbound write, local connection gone", "error", err)
	}
}

// IsRunning reports whether a local client connection is currently active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AssignedPort returns the port Start bound to (0 for the Unix-domain-
// socket variant).
func (s *Server) AssignedPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignedPort
}

// Shutdown closes the listener and any active connection. Idempotent.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	l := s.listener
	conn := s.activeConn
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if l != nil {
		if cerr := l.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
