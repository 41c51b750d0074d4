// Package main is the entry point for the streampoll CLI.
//
// streampoll can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	streampoll serve -c config.yaml    # Start polling and the control API
//	streampoll validate -c config.yaml # Validate configuration
//	streampoll streams -c config.yaml  # List stored streams
//	streampoll version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "streampoll",
	Short: "Poll GitHub issue searches for a set of streams",
	Long: `streampoll polls GitHub issue searches for a set of streams and stores
the issues it finds.

Streams are polled one at a time in priority order. Edits made through the
control API take effect immediately.

Quick start:
  1. Create a config file (streampoll.yaml)
  2. Run: streampoll serve -c streampoll.yaml
  3. Inspect the schedule at http://localhost:8080/api/queue

Example config:
  port: 8080
  database: streampoll.db
  github:
    token: ${GITHUB_TOKEN}
    login: octocat
  streams:
    - name: My open issues
      queries: ["is:open involves:octocat"]`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this streampoll binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "streampoll %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	rootCmd.AddCommand(versionCmd)
}
