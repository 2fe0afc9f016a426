package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/softwareag/c8ylp/internal/cfg"
	"github.com/softwareag/c8ylp/internal/pidfile"
	"github.com/softwareag/c8ylp/internal/resolver"
	"github.com/softwareag/c8ylp/internal/restclient"
	"github.com/softwareag/c8ylp/internal/supervisor"
)

var serverSettings cliSettings
var serverPidFile string
var serverKillExisting bool

var serverCmd = &cobra.Command{
	Use:   "server DEVICE",
	Short: "Run the proxy in the foreground, printing the local port to connect to",
	Args:  cobra.ExactArgs(1),
	RunE:  runServer,
}

func init() {
	bindCommonFlags(serverCmd.Flags(), &serverSettings)
	serverCmd.Flags().IntVar(&serverSettings.port, "port", cfg.DefaultServerPort, "local TCP port to listen on (0 picks a free port)")
	serverCmd.Flags().StringVar(&serverPidFile, "pid-file", defaultPidFilePath(), "path tracking running c8ylp server instances")
	serverCmd.Flags().BoolVar(&serverKillExisting, "kill-existing", false, "terminate other server instances sharing --pid-file before starting")
}

func defaultPidFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".c8ylp.pid"
	}
	return filepath.Join(home, ".c8ylp", "c8ylp.pid")
}

func runServer(cmd *cobra.Command, args []string) error {
	serverSettings.device = args[0]

	proxyCfg, err := resolveProxyConfig(cmd.Flags(), serverSettings)
	if err != nil {
		return err
	}
	creds := resolveCredentials(serverSettings)

	client, err := restclient.New(restclient.Options{BaseURL: proxyCfg.Host, IgnoreTLSVerify: proxyCfg.IgnoreTLSVerify})
	if err != nil {
		return err
	}

	r := resolver.New(client, huhPrompter{}, serverSettings.disablePrompts)
	binding, creds, err := r.Resolve(cmd.Context(), proxyCfg, creds)
	if err != nil {
		return err
	}

	if serverKillExisting {
		if err := pidfile.KillExisting(serverPidFile); err != nil {
			return fmt.Errorf("killing existing server instances: %w", err)
		}
	}
	if err := pidfile.Upsert(serverPidFile, pidfile.Entry{
		URL:    proxyCfg.Host,
		Device: proxyCfg.Device,
		Config: proxyCfg.ConfigName,
		User:   creds.User,
	}); err != nil {
		return fmt.Errorf("recording pid file: %w", err)
	}
	defer func() { _ = pidfile.Clean(serverPidFile, os.Getpid()) }()

	sup := supervisor.New(proxyCfg, supervisor.Binding{
		BaseURL:  proxyCfg.Host,
		DeviceID: binding.ManagedObjectID,
		ConfigID: binding.RemoteConfigID,
	}, creds, globalLogger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	port, err := sup.Start(ctx)
	if err != nil {
		return err
	}
	defer sup.Shutdown()

	printServerBanner(proxyCfg, port)

	code := sup.ServeForever(ctx)
	if code != 0 {
		return fmt.Errorf("session ended with exit code %s", code)
	}
	return nil
}

// printServerBanner prints the "listening on localhost:port" banner plus
// an ssh hint (spec §4.3 step f), styled when stderr is a terminal.
func printServerBanner(c cfg.ProxyConfig, port int) {
	target := fmt.Sprintf("localhost:%d", port)
	if c.SocketPath != "" {
		target = c.SocketPath
	}
	fmt.Fprintln(os.Stderr, styleHeader.Render(fmt.Sprintf("c8ylp is listening on %s", target)))
	if c.SocketPath == "" {
		user := c.SSHUser
		if user == "" {
			user = "<user>"
		}
		fmt.Fprintln(os.Stderr, styleKey.Render(fmt.Sprintf("  ssh -p %d %s@localhost", port, user)))
	}
}
