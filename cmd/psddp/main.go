// Psddp finds PlayStation consoles on the local network and reports their
// power and application status over the Device Discovery Protocol.
//
// It can search the network, query a single console, send wakeup and launch
// requests, and watch consoles continuously with an interactive status
// screen or an optional WebSocket feed for other tools.
//
// Usage:
//
//	psddp [command] [flags]
//
// See 'psddp --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/psddp/internal/config"
	"github.com/muurk/psddp/internal/ddp"
	"github.com/muurk/psddp/internal/logging"
	"github.com/muurk/psddp/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	localPort  int
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "psddp",
	Short: "PlayStation console discovery and status",
	Long: `Discover PlayStation 4 and 5 consoles on the local network and report
whether they are on, in standby or unreachable, and what they are running.

Consoles answer on UDP port 987. psddp listens on local port 1987 when it is
free and falls back to an ephemeral port otherwise.

Known consoles, credentials and learned game titles are kept in a YAML file
under your user config directory.`,
	Version:       version.Get().Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().IntVar(&localPort, "port", ddp.DefaultLocalPort, "Local UDP port (ephemeral if unavailable)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $"+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default is the user config directory)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

// effectiveLocalPort prefers an explicit --port over the saved preference
func effectiveLocalPort(cmd *cobra.Command, reg *config.Registry) int {
	if cmd.Flags().Changed("port") || reg.Preferences == nil || reg.Preferences.LocalPort == 0 {
		return localPort
	}
	return reg.Preferences.LocalPort
}

// newClient builds a one-shot DDP client from flags and preferences
func newClient(cmd *cobra.Command, reg *config.Registry) *ddp.Client {
	client := ddp.NewClient()
	client.LocalPort = effectiveLocalPort(cmd, reg)
	client.Timeout = reg.Preferences.SearchTimeoutDuration()
	return client
}
