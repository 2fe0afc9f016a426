package main

import (
	"github.com/spf13/cobra"

	"github.com/softwareag/c8ylp/internal/coordinator"
	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/resolver"
	"github.com/softwareag/c8ylp/internal/restclient"
	"github.com/softwareag/c8ylp/internal/supervisor"
)

var pluginSettings cliSettings

var pluginCmd = &cobra.Command{
	Use:   "plugin NAME DEVICE [ARGS...]",
	Short: "Run a named plugin (or the built-in 'command' plugin) against the tunnel",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPlugin,
}

func init() {
	bindCommonFlags(pluginCmd.Flags(), &pluginSettings)
	pluginCmd.Flags().IntVar(&pluginSettings.port, "port", 0, "local TCP port to listen on (0 picks a free port)")
}

func runPlugin(cmd *cobra.Command, args []string) error {
	name := args[0]
	pluginSettings.device = args[1]
	extraArgs := args[2:]

	proxyCfg, err := resolveProxyConfig(cmd.Flags(), pluginSettings)
	if err != nil {
		return err
	}
	creds := resolveCredentials(pluginSettings)

	client, err := restclient.New(restclient.Options{BaseURL: proxyCfg.Host, IgnoreTLSVerify: proxyCfg.IgnoreTLSVerify})
	if err != nil {
		return err
	}

	r := resolver.New(client, huhPrompter{}, pluginSettings.disablePrompts)
	binding, creds, err := r.Resolve(cmd.Context(), proxyCfg, creds)
	if err != nil {
		return err
	}

	var argv []string
	if name == "command" {
		argv, err = coordinator.BuildCommandArgv(extraArgs)
	} else {
		argv, err = coordinator.BuildPluginArgv(name, extraArgs)
	}
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
		return exitcode.Wrap(code, "plugin %q exited with a non-zero status", name)
	}
	return nil
}
