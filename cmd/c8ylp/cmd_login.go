package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/softwareag/c8ylp/internal/envfile"
	"github.com/softwareag/c8ylp/internal/resolver"
	"github.com/softwareag/c8ylp/internal/restclient"
)

var loginSettings cliSettings

var loginCmd = &cobra.Command{
	Use:   "login DEVICE",
	Short: "Resolve a device's Passthrough configuration and cache a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

func init() {
	bindCommonFlags(loginCmd.Flags(), &loginSettings)
}

func runLogin(cmd *cobra.Command, args []string) error {
	loginSettings.device = args[0]

	proxyCfg, err := resolveProxyConfig(cmd.Flags(), loginSettings)
	if err != nil {
		return err
	}
	creds := resolveCredentials(loginSettings)

	client, err := restclient.New(restclient.Options{BaseURL: proxyCfg.Host, IgnoreTLSVerify: proxyCfg.IgnoreTLSVerify})
	if err != nil {
		return err
	}

	r := resolver.New(client, huhPrompter{}, loginSettings.disablePrompts)
	binding, creds, err := r.Resolve(cmd.Context(), proxyCfg, creds)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("Resolved device %q to remote-access configuration %q", proxyCfg.Device, binding.RemoteConfigID)
	fmt.Fprintln(os.Stderr, styleActive.Render(summary))
	globalLogger.Info("login resolved", "device", proxyCfg.Device, "managedObject", binding.ManagedObjectID, "config", binding.RemoteConfigID, "success", true)

	if loginSettings.storeToken {
		envFilePath := globalEnvFile
		if envFilePath == "" {
			envFilePath = os.Getenv("C8YLP_ENV_FILE")
		}
		if envFilePath != "" {
			fields := resolver.PersistableFields(proxyCfg.Host, creds)
			if err := envfile.Save(envFilePath, fields); err != nil {
				return fmt.Errorf("persisting session to env file: %w", err)
			}
		}
	}

	return nil
}

// huhPrompter implements resolver.Prompter using huh's terminal forms
// (spec §4.5, grounded on the teacher's customHuhTheme/huh.NewForm usage
// for interactive prompts — cmd/bamgate/cmd_login.go predecessor).
type huhPrompter struct{}

func (huhPrompter) PromptUser() (string, error) {
	var value string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Cumulocity username").Value(&value),
	)).WithTheme(customHuhTheme()).Run()
	return value, err
}

func (huhPrompter) PromptPassword() (string, error) {
	var value string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Cumulocity password").EchoMode(huh.EchoModePassword).Value(&value),
	)).WithTheme(customHuhTheme()).Run()
	return value, err
}

func (huhPrompter) PromptTFACode() (string, error) {
	var value string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Two-factor authentication code").Value(&value),
	)).WithTheme(customHuhTheme()).Run()
	return value, err
}
