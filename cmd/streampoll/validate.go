package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/streampoll/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a streampoll configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  streampoll validate -c config.yaml
  streampoll validate --config /etc/streampoll/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := config.BuildOptions(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	enabled := 0
	for _, s := range cfg.Streams {
		if s.IsEnabled() {
			enabled++
		}
	}

	database := cfg.Database
	if database == "" {
		database = "(in-memory)"
	}
	interval := "(stored preference)"
	if cfg.PollInterval != 0 {
		interval = cfg.PollInterval.Duration().String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Database:      %s\n", database)
	fmt.Fprintf(out, "  Poll interval: %s\n", interval)
	fmt.Fprintf(out, "  Streams:       %d configured, %d enabled\n", len(cfg.Streams), enabled)
	fmt.Fprintf(out, "  Account:       %d teams, %d watched repos, %d subscriptions\n",
		len(cfg.GitHub.Teams), len(cfg.GitHub.Watching), len(cfg.GitHub.Subscriptions))

	return nil
}
