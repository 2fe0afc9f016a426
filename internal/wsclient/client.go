// Package wsclient implements C1, the Upstream WS Client (spec §4.1): one
// WebSocket connection to a device's Passthrough remote-access
// configuration, with reconnection and stability gating.
//
// It follows the shape of the teacher's internal/signaling.Client —
// dial/reconnect loop, callback-based message delivery, exponential
// backoff — generalized from the teacher's JSON signaling protocol to raw
// binary/text byte pass-through, and from the teacher's unbounded
// reconnect-forever policy to c8ylp's counted/disableable reconnect budget
// with a stability timer (spec §4.1) and a fatal, non-retryable 401 path
// (spec §4.1, §9(c)).
package wsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/exitcode"
)

// State is C1's lifecycle state (spec §3 UpstreamState).
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Client.
type Config struct {
	// BaseURL is the Cumulocity tenant base URL (https://... or http://...);
	// it is rewritten to ws(s):// for the dial (spec §4.1).
	BaseURL string
	DeviceID string
	ConfigID string

	Credentials cfg.SessionCredentials

	IgnoreTLSVerify bool

	// PingInterval enables WebSocket keep-alive pings at this cadence, with
	// a pong timeout of 90% of the interval. Zero disables pings.
	PingInterval time.Duration

	// MaxReconnects bounds reconnection attempts; see cfg.ProxyConfig for
	// the exact >0/==0/<0 semantics.
	MaxReconnects int

	Logger *slog.Logger
}

// Client owns one upstream WebSocket connection (spec §4.1).
type Client struct {
	cfg Config
	log *slog.Logger

	onInbound          func([]byte)
	onShutdownRequested func()

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	attempts atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Client. OnInboundMessage and OnShutdownRequested must be
// set (via SetCallbacks) before Connect is called.
func New(c Config) *Client {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:   c,
		log:   log.With("component", "wsclient"),
		state: Idle,
		done:  make(chan struct{}),
	}
}

// SetCallbacks installs C3's lifecycle callbacks (spec §4.1). Must be
// called before Connect.
func (c *Client) SetCallbacks(onInbound func([]byte), onShutdownRequested func()) {
	c.onInbound = onInbound
	c.onShutdownRequested = onShutdownRequested
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether the connection is currently Open.
func (c *Client) IsOpen() bool {
	return c.State() == Open
}

// WaitOpen blocks until the client reaches Open or timeout elapses,
// returning whether it is Open.
func (c *Client) WaitOpen(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsOpen() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.IsOpen()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// dialURL rewrites the configured base URL to ws(s):// and appends the
// remote-access path (spec §4.1).
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/service/remoteaccess/client/%s/configurations/%s", c.cfg.DeviceID, c.cfg.ConfigID)
	return u.String(), nil
}

func (c *Client) dialOptions() *websocket.DialOptions {
	header := http.Header{"Content-Type": []string{"application/json"}}
	if c.cfg.Credentials.HasToken() {
		header.Set("Authorization", "Bearer "+c.cfg.Credentials.Token)
	} else if c.cfg.Credentials.XSRFToken != "" {
		header.Set("X-XSRF-TOKEN", c.cfg.Credentials.XSRFToken)
	}

	httpClient := &http.Client{}
	if c.cfg.IgnoreTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in (spec §6.3 --ignore-ssl-validate)
		}
	}

	return &websocket.DialOptions{
		HTTPClient: httpClient,
		HTTPHeader: header,
	}
}

// Connect dials the upstream WebSocket and, on success, starts the read
// pump, ping timer, and stability timer. It blocks for the initial dial
// only; reconnection happens on its own goroutine.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(Connecting)

	conn, resp, err := c.dial(ctx)
	if err != nil {
		if isHandshake401(resp, err) {
			c.setState(Closed)
			return exitcode.Wrap(exitcode.NotAuthorized, "websocket handshake rejected (401): %w", err)
		}
		c.setState(Closed)
		return fmt.Errorf("dialing upstream websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Open
	c.mu.Unlock()

	c.log.Info("upstream websocket open", "device", c.cfg.DeviceID, "config", c.cfg.ConfigID)

	go c.armStabilityTimer()
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(ctx)
	}
	go c.readPump(ctx)

	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	dialURL, err := c.dialURL()
	if err != nil {
		return nil, nil, err
	}
	return websocket.Dial(ctx, dialURL, c.dialOptions())
}

// isHandshake401 detects an HTTP 401 during the WebSocket handshake, first
// from the *http.Response coder/websocket returns alongside the dial
// error, falling back to string matching for wrapped errors — matching
// the teacher's own isHTTP401 string-match approach but preferring the
// structured signal when available.
func isHandshake401(resp *http.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "401")
}

// armStabilityTimer zeroes the reconnect-attempts counter 10s after a
// successful Open, provided the connection is still Open then (spec §4.1
// "stability timer").
func (c *Client) armStabilityTimer() {
	timer := time.NewTimer(cfg.StabilityTimerWindow)
	defer timer.Stop()

	select {
	case <-timer.C:
		if c.IsOpen() {
			c.attempts.Store(0)
			c.log.Debug("stability window elapsed, reconnect budget reset")
		}
	case <-c.done:
	}
}

// pingLoop sends periodic WebSocket pings with a pong timeout of 90% of
// the configured interval (spec §4.1 "Keep-alive").
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	pongTimeout := time.Duration(float64(c.cfg.PingInterval) * 0.9)

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, pongTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Warn("websocket ping failed", "error", err)
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readPump delivers every inbound frame verbatim to onInbound (spec §4.1:
// text and binary both pass through raw, no framing imposed), and drives
// the reconnect state machine on read error.
func (c *Client) readPump(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleDisconnect(ctx, err)
			return
		}

		if c.onInbound != nil {
			c.onInbound(data)
		}
	}
}

// handleDisconnect runs when the read pump exits, implementing the
// Open -> Closed transition and reconnect-eligibility decision (spec §4.1).
func (c *Client) handleDisconnect(ctx context.Context, cause error) {
	c.mu.Lock()
	wasClosing := c.state == Closing
	c.state = Closed
	c.conn = nil
	c.mu.Unlock()

	if wasClosing || ctx.Err() != nil {
		// Explicit Close() or context cancellation — no reconnect.
		return
	}

	c.log.Warn("upstream websocket closed", "error", cause)

	if !c.reconnect(ctx) {
		if c.onShutdownRequested != nil {
			c.onShutdownRequested()
		}
	}
}

// reconnect re-dials until success, the reconnect budget is exhausted, or
// ctx is cancelled. Returns whether it reconnected.
func (c *Client) reconnect(ctx context.Context) bool {
	limit := c.cfg.MaxReconnects
	if limit < 0 {
		// Reconnect permanently disabled (spec §4.1).
		return false
	}

	for {
		attempt := c.attempts.Add(1)
		if limit > 0 && attempt > int64(limit) {
			c.log.Error("reconnect attempts exhausted", "attempts", attempt-1, "max", limit)
			return false
		}

		backoff := backoffFor(attempt)
		c.log.Info("reconnecting upstream websocket", "attempt", attempt, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		}

		c.setState(Connecting)
		conn, resp, err := c.dial(ctx)
		if err != nil {
			if isHandshake401(resp, err) {
				c.log.Error("reconnect rejected with 401, giving up", "error", err)
				c.setState(Closed)
				return false
			}
			c.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = Open
		c.mu.Unlock()

		c.log.Info("upstream websocket reconnected", "attempt", attempt)
		go c.armStabilityTimer()
		if c.cfg.PingInterval > 0 {
			go c.pingLoop(ctx)
		}
		go c.readPump(ctx)
		return true
	}
}

// backoffFor returns a capped exponential backoff: 500ms * 2^(n-1),
// capped at 10s.
func backoffFor(attempt int64) time.Duration {
	const base = 500 * time.Millisecond
	const ceiling = 10 * time.Second
	if attempt > 10 {
		return ceiling
	}
	d := base << (attempt - 1)
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}

// SendBinary writes a single binary frame. If the connection is not Open,
// the write is silently dropped (spec §4.1 "Outbound data path").
func (c *Client) SendBinary(ctx context.Context, data []byte) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == Open
	c.mu.Unlock()

	if !open || conn == nil {
		return
	}

	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		c.log.Debug("dropping outbound write after connection loss", "error", err)
	}
}

// Close idempotently tears down the connection; no reconnect follows
// (spec §4.1 Open -> Closing -> Closed, testable property 2).
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.state = Closing
		c.mu.Unlock()

		if conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "closing")
		}

		c.mu.Lock()
		c.state = Closed
		c.conn = nil
		c.mu.Unlock()

		close(c.done)
	})
	return err
}
