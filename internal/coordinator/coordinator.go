// Package coordinator implements C4, the Background-Mode Coordinator
// (spec §4.4): runs C3 on a worker while a foreground subcommand (ssh,
// scp/command, or plugin) executes against the tunnel, then tears the
// session down when that subcommand exits.
//
// It replaces the teacher's execve-style subprocess replacement
// (cmd/bamgate/exec_unix.go's syscall.Exec, exec_windows.go's bare
// exec.Command) with an os/exec.Cmd + Wait() pattern uniformly on every
// platform: the spec requires deferred teardown to run after the
// subcommand exits, which a process-image replacement makes impossible.
// The signal-handling setup is grounded on the teacher's
// cmd/bamgate/cmd_up.go signal.NotifyContext usage, extended to also
// catch SIGUSR1 on Unix (spec §4.4 item 2) via a build-tag split file.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"time"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/supervisor"
)

// Coordinator runs C4 (spec §4.4).
type Coordinator struct {
	cfg     cfg.ProxyConfig
	binding supervisor.Binding
	creds   cfg.SessionCredentials
	log     *slog.Logger
}

// New constructs a Coordinator.
func New(c cfg.ProxyConfig, binding supervisor.Binding, creds cfg.SessionCredentials, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: c, binding: binding, creds: creds, log: logger.With("component", "coordinator")}
}

// Subcommand describes the child process C4 launches once the tunnel is
// ready (spec §4.4 item 5).
type Subcommand struct {
	Argv []string
}

// Run starts C3 on a worker, waits for readiness, exports environment
// variables, launches the subcommand, and propagates its exit code (spec
// §4.4). It returns the exit code the process should use.
func (c *Coordinator) Run(parent context.Context, sub Subcommand) exitcode.Code {
	ctx, stop := notifyTerminate(parent)
	defer stop()

	sup := supervisor.New(c.cfg, c.binding, c.creds, c.log)

	port, err := sup.Start(ctx)
	if err != nil {
		c.log.Error("failed to start session", "error", err)
		return exitcode.From(err)
	}
	defer sup.Shutdown()

	go sup.ServeForever(ctx)

	if !sup.WaitRunning(c.cfg.ReadinessWaitTimeout) {
		c.log.Error("local listener did not become ready in time")
		return exitcode.TimeoutWaitForPort
	}

	c.exportEnv(port)

	exitCode, err := c.runSubcommand(ctx, sub)
	if err != nil {
		c.log.Error("subcommand failed", "error", err)
	}
	return exitCode
}

// exportEnv sets the environment variables the subcommand (and its own
// children, including WSL children via WSLENV) observe (spec §4.4 item 4,
// §6.4).
func (c *Coordinator) exportEnv(port int) {
	_ = os.Setenv("C8Y_HOST", c.cfg.Host)
	_ = os.Setenv("PORT", strconv.Itoa(port))
	_ = os.Setenv("DEVICE", c.cfg.Device)
	_ = os.Setenv("WSLENV", "PORT/u:DEVICE/u:C8Y_HOST/u")
}

// runSubcommand launches sub.Argv as a child process, wiring its
// stdio/environment to the current process (spec §4.4 item 5), and
// reports a command-timer duration line on exit (spec §4.4 "Timing").
func (c *Coordinator) runSubcommand(ctx context.Context, sub Subcommand) (exitcode.Code, error) {
	if len(sub.Argv) == 0 {
		return exitcode.CommandNotFound, fmt.Errorf("no subcommand configured")
	}

	start := time.Now()
	defer func() {
		c.log.Info("subcommand finished", "duration", formatDuration(time.Since(start)))
	}()

	cmd := exec.CommandContext(ctx, sub.Argv[0], sub.Argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	err := cmd.Run()
	if err == nil {
		return exitcode.OK, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitcode.Code(exitErr.ExitCode()), nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return exitcode.CommandNotFound, err
	}
	return exitcode.Unknown, err
}

// formatDuration renders d as HH:MM:SS (spec §4.4 "Timing").
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// notifyTerminate returns a context cancelled on interrupt, plus the
// platform-specific signal set (spec §4.4 item 2: SIGINT+SIGUSR1 on Unix,
// SIGINT on Windows), implemented in terminate_unix.go/terminate_windows.go.
func notifyTerminate(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, terminateSignals()...)
}
