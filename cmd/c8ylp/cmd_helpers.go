package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/envfile"
)

// normalizeHostURL ensures the Cumulocity tenant URL has a valid HTTP(S)
// scheme, defaulting to https:// when none is given. wsclient performs
// its own https/http -> wss/ws rewrite at dial time (spec §4.1), so the
// host stored in ProxyConfig always stays http(s).
func normalizeHostURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty host")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing host URL: %w", err)
	}

	switch u.Scheme {
	case "https", "http":
		// Already correct.
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	default:
		return "", fmt.Errorf("unsupported scheme %q (expected http or https)", u.Scheme)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// cliSettings holds every flag shared by the commands that start a
// session (spec §6.3). Subcommands bind these with cobra then call
// resolveProxyConfig/resolveCredentials.
type cliSettings struct {
	host            string
	device          string
	externalType    string
	configName      string
	tenant          string
	user            string
	password        string
	token           string
	tfaCode         string
	port            int
	pingInterval    time.Duration
	tcpSize         int
	tcpTimeout      time.Duration
	ignoreSSLVerify bool
	storeToken      bool
	disablePrompts  bool
	reconnects      int
	sshUser         string
	socketPath      string
}

func bindCommonFlags(cmd *pflag.FlagSet, s *cliSettings) {
	cmd.StringVar(&s.host, "host", "", "Cumulocity tenant URL (or $C8Y_HOST/$C8Y_BASEURL/$C8Y_URL)")
	cmd.StringVar(&s.externalType, "external-type", cfg.DefaultExternalType, "external identity type used to look up the device")
	cmd.StringVar(&s.configName, "config", cfg.DefaultConfigName, "name of the Passthrough remote-access configuration")
	cmd.StringVar(&s.tenant, "tenant", "", "Cumulocity tenant id (or $C8Y_TENANT)")
	cmd.StringVar(&s.user, "user", "", "Cumulocity username (or $C8Y_USER)")
	cmd.StringVar(&s.password, "password", "", "Cumulocity password (or $C8Y_PASSWORD)")
	cmd.StringVar(&s.token, "token", "", "Cumulocity bearer token (or $C8Y_TOKEN)")
	cmd.StringVar(&s.tfaCode, "tfa-code", "", "two-factor authentication code (or $C8Y_TFA_CODE)")
	cmd.DurationVar(&s.pingInterval, "ping-interval", 0, "WebSocket keep-alive ping interval (0 disables)")
	cmd.IntVar(&s.tcpSize, "tcp-size", cfg.DefaultTCPBufferSize, "TCP read buffer size in bytes (1024-8388608)")
	cmd.DurationVar(&s.tcpTimeout, "tcp-timeout", 0, "idle timeout for the local TCP connection (0 disables)")
	cmd.BoolVar(&s.ignoreSSLVerify, "ignore-ssl-validate", false, "skip TLS certificate verification")
	cmd.BoolVar(&s.storeToken, "store-token", false, "persist the acquired token to the env file")
	cmd.BoolVar(&s.disablePrompts, "disable-prompts", false, "fail instead of prompting for missing credentials")
	cmd.IntVar(&s.reconnects, "reconnects", cfg.DefaultReconnects, "max reconnect attempts (-1 disables, 0 unlimited, 1-10 bounded)")
	cmd.StringVar(&s.sshUser, "ssh-user", "", "username for the ssh subcommand")
	cmd.StringVar(&s.socketPath, "socket-path", "", "use a Unix-domain socket instead of TCP")
}

// resolveProxyConfig merges CLI flags (highest precedence), process
// environment, and the env file (lowest precedence among inputs, highest
// among defaults) into a ProxyConfig (spec §6.3-§6.4). flags is the
// invoking subcommand's bound FlagSet, used to tell an explicitly-passed
// flag apart from one merely holding its registered default.
func resolveProxyConfig(flags *pflag.FlagSet, s cliSettings) (cfg.ProxyConfig, error) {
	envFilePath := globalEnvFile
	if envFilePath == "" {
		envFilePath = os.Getenv("C8YLP_ENV_FILE")
	}
	fileVars, err := envfile.Load(envFilePath)
	if err != nil {
		return cfg.ProxyConfig{}, fmt.Errorf("loading env file: %w", err)
	}

	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVars[key]
	}

	c := cfg.Defaults()

	c.Host = firstNonEmpty(s.host, lookup("C8Y_HOST"), lookup("C8Y_BASEURL"), lookup("C8Y_URL"))
	if c.Host != "" {
		normalized, err := normalizeHostURL(c.Host)
		if err != nil {
			return cfg.ProxyConfig{}, err
		}
		c.Host = normalized
	}

	c.Tenant = firstNonEmpty(s.tenant, lookup("C8Y_TENANT"))
	c.Device = s.device
	if s.externalType != "" {
		c.ExternalType = s.externalType
	}
	if s.configName != "" {
		c.ConfigName = s.configName
	}
	c.SocketPath = s.socketPath

	c.Port = resolveIntFlag(flags, "port", s.port, "C8YLP_PORT", lookup)
	c.PingInterval = resolveDurationFlag(flags, "ping-interval", s.pingInterval, "C8YLP_PING_INTERVAL", lookup)
	c.TCPBufferSize = resolveIntFlag(flags, "tcp-size", s.tcpSize, "C8YLP_TCP_SIZE", lookup)
	c.TCPIdleTimeout = resolveDurationFlag(flags, "tcp-timeout", s.tcpTimeout, "C8YLP_TCP_TIMEOUT", lookup)
	c.MaxReconnects = resolveIntFlag(flags, "reconnects", s.reconnects, "C8YLP_RECONNECTS", lookup)

	c.IgnoreTLSVerify = s.ignoreSSLVerify || lookup("C8YLP_IGNORE_SSL_VALIDATE") == "true"

	c.SSHUser = s.sshUser

	if err := c.Validate(); err != nil {
		return cfg.ProxyConfig{}, err
	}
	return c, nil
}

// resolveIntFlag applies CLI flag > env/env-file > flag default precedence
// for an integer setting. flagVal already holds either the user-supplied
// value or the flag's registered default; Changed tells the two apart.
func resolveIntFlag(flags *pflag.FlagSet, name string, flagVal int, envKey string, lookup func(string) string) int {
	if flags.Changed(name) {
		return flagVal
	}
	if v := lookup(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return flagVal
}

// resolveDurationFlag is resolveIntFlag's duration-typed counterpart.
func resolveDurationFlag(flags *pflag.FlagSet, name string, flagVal time.Duration, envKey string, lookup func(string) string) time.Duration {
	if flags.Changed(name) {
		return flagVal
	}
	if v := lookup(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return flagVal
}

// resolveCredentials merges CLI flags, environment, and env-file values
// into SessionCredentials (spec §3 invariant: a token always wins).
func resolveCredentials(s cliSettings) cfg.SessionCredentials {
	envFilePath := globalEnvFile
	if envFilePath == "" {
		envFilePath = os.Getenv("C8YLP_ENV_FILE")
	}
	fileVars, _ := envfile.Load(envFilePath)
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVars[key]
	}

	return cfg.SessionCredentials{
		Token:    firstNonEmpty(s.token, lookup("C8Y_TOKEN")),
		User:     firstNonEmpty(s.user, lookup("C8Y_USER")),
		Password: firstNonEmpty(s.password, lookup("C8Y_PASSWORD")),
		TFACode:  firstNonEmpty(s.tfaCode, lookup("C8Y_TFA_CODE")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// styleError renders an error message in red when stderr is a terminal,
// plain text otherwise (spec §7).
func styleError(msg string) string {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return msg
	}
	return styleRevoked.Render(msg)
}
