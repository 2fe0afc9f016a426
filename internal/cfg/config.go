// Package cfg defines ProxyConfig (spec §3), the immutable-after-start
// configuration shared by every component, and the flag/env/env-file
// merge that produces it (spec §6.3–§6.4).
package cfg

import (
	"fmt"
	"time"
)

// Defaults mirror spec §6.3's documented CLI defaults.
const (
	DefaultExternalType  = "c8y_Serial"
	DefaultConfigName    = "Passthrough"
	DefaultTCPBufferSize = 4096
	MinTCPBufferSize     = 1024
	MaxTCPBufferSize     = 8 * 1024 * 1024
	DefaultReconnects    = 5
	MinReconnects        = -1
	MaxReconnects        = 10
	DefaultServerPort    = 2222
	DefaultReadinessWait = 10 * time.Second
	DefaultBindAddress   = "127.0.0.1"
	StabilityTimerWindow = 10 * time.Second
)

// ProxyConfig is immutable after Start (spec §3).
type ProxyConfig struct {
	Host         string
	Tenant       string
	Device       string
	ExternalType string
	ConfigName   string

	BindAddress string
	// Port is the requested listener port. 0 means the OS assigns one.
	Port int
	// SocketPath, when non-empty, selects the Unix-domain-socket listener
	// variant instead of TCP (spec §6.2).
	SocketPath string

	TCPBufferSize int
	// TCPIdleTimeout is the idle read timeout. Zero disables it.
	TCPIdleTimeout time.Duration
	// PingInterval is the WebSocket keep-alive ping interval. Zero disables it.
	PingInterval time.Duration

	IgnoreTLSVerify bool

	// MaxReconnects bounds C1's reconnect attempts. Semantics (spec §4.1,
	// testable property 4 — this reimplementation follows the state-machine
	// text over the data-model summary in §3, see DESIGN.md):
	//   > 0  : at most MaxReconnects attempts
	//   == 0 : unlimited
	//   < 0  : reconnect disabled entirely
	MaxReconnects int

	ReadinessWaitTimeout time.Duration

	SSHUser string
}

// Validate checks invariants that don't depend on runtime discovery
// (host/device presence is checked by callers once CLI/env merging is
// complete, since a bare `version` invocation never needs them).
func (c ProxyConfig) Validate() error {
	if c.TCPBufferSize < MinTCPBufferSize || c.TCPBufferSize > MaxTCPBufferSize {
		return fmt.Errorf("tcp buffer size %d out of range [%d, %d]", c.TCPBufferSize, MinTCPBufferSize, MaxTCPBufferSize)
	}
	if c.MaxReconnects < MinReconnects || c.MaxReconnects > MaxReconnects {
		return fmt.Errorf("reconnects %d out of range [%d, %d]", c.MaxReconnects, MinReconnects, MaxReconnects)
	}
	if c.Port < 0 {
		return fmt.Errorf("port %d must be >= 0", c.Port)
	}
	return nil
}

// Defaults returns a ProxyConfig with every documented default applied
// (spec §6.3), ready to be overridden by flags/env/env-file.
func Defaults() ProxyConfig {
	return ProxyConfig{
		ExternalType:         DefaultExternalType,
		ConfigName:           DefaultConfigName,
		BindAddress:          DefaultBindAddress,
		TCPBufferSize:        DefaultTCPBufferSize,
		MaxReconnects:        DefaultReconnects,
		ReadinessWaitTimeout: DefaultReadinessWait,
	}
}
