package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/softwareag/c8ylp/internal/coordinator"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/resolver"
	"github.com/softwareag/c8ylp/internal/restclient"
	"github.com/softwareag/c8ylp/internal/supervisor"
)

var connectSettings cliSettings

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Run the proxy in the background while a client command uses it",
}

var connectSSHCmd = &cobra.Command{
	Use:   "ssh DEVICE [REMOTE_COMMANDS...]",
	Short: "Run ssh against the tunnel, tearing the session down when ssh exits",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConnectSSH,
}

func init() {
	bindCommonFlags(connectSSHCmd.Flags(), &connectSettings)
	connectSSHCmd.Flags().IntVar(&connectSettings.port, "port", 0, "local TCP port to listen on (0 picks a free port)")
	connectCmd.AddCommand(connectSSHCmd)
}

func runConnectSSH(cmd *cobra.Command, args []string) error {
	connectSettings.device = args[0]
	remoteCommands := args[1:]

	proxyCfg, err := resolveProxyConfig(cmd.Flags(), connectSettings)
	if err != nil {
		return err
	}
	creds := resolveCredentials(connectSettings)

	client, err := restclient.New(restclient.Options{BaseURL: proxyCfg.Host, IgnoreTLSVerify: proxyCfg.IgnoreTLSVerify})
	if err != nil {
		return err
	}

	r := resolver.New(client, huhPrompter{}, connectSettings.disablePrompts)
	binding, creds, err := r.Resolve(cmd.Context(), proxyCfg, creds)
	if err != nil {
		return err
	}

	// ssh needs a concrete port number baked into its argv up front, so
	// when none was requested we reserve one ourselves rather than let
	// the supervisor's listener pick one after the argv is already built.
	if proxyCfg.Port == 0 {
		port, err := pickFreePort()
		if err != nil {
			return err
		}
		proxyCfg.Port = port
	}

	argv, err := coordinator.BuildSSHArgv(proxyCfg.Port, firstNonEmpty(connectSettings.sshUser, "admin"), remoteCommands)
	if err != nil {
		return err
	}

	co := coordinator.New(proxyCfg, supervisor.Binding{
		BaseURL:  proxyCfg.Host,
		DeviceID: binding.ManagedObjectID,
		ConfigID: binding.RemoteConfigID,
	}, creds, globalLogger)

	code := co.Run(cmd.Context(), coordinator.Subcommand{Argv: argv})
	if code != exitcode.OK {
		return exitcode.Wrap(code, "ssh session exited with a non-zero status")
	}
	return nil
}

// pickFreePort reserves an ephemeral TCP port on loopback and releases it
// immediately so the supervisor's listener (opened with SO_REUSEADDR) can
// rebind the same number a moment later.
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserving a local port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
