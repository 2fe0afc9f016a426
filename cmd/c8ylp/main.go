// Command c8ylp is a local TCP-to-WebSocket tunneling proxy for
// Cumulocity Cloud Remote Access. It lets ordinary TCP clients (ssh, scp,
// sftp) talk to localhost:<port> and have their byte streams relayed,
// over an authenticated WebSocket session, to a Passthrough remote-access
// configuration on a device registered in a Cumulocity tenant.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/softwareag/c8ylp/internal/exitcode"
	"github.com/softwareag/c8ylp/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Global flags shared across subcommands (spec §6.3).
var (
	globalEnvFile string
	globalLogDir  string
	globalVerbose bool
	globalLogger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "c8ylp",
	Short: "Local proxy for Cumulocity Cloud Remote Access",
	Long: `c8ylp tunnels ordinary TCP clients (ssh, scp, sftp) through an
authenticated WebSocket session to a Passthrough remote-access
configuration on a device registered in a Cumulocity tenant.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		globalLogger = logging.New(logging.Config{Dir: globalLogDir, Verbose: globalVerbose})
		slog.SetDefault(globalLogger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalEnvFile, "env-file", "", "path to a .env file with C8Y_*/C8YLP_* settings")
	rootCmd.PersistentFlags().StringVar(&globalLogDir, "log-dir", "", "directory for the rotating log file (default: $C8YLP_LOG_DIR or ~/.c8ylp)")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the c8ylp version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func main() {
	err := rootCmd.Execute()
	code := exitcode.From(err)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError(err.Error()))
	}
	os.Exit(int(code))
}
