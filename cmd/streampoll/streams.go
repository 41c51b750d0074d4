package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/streampoll/config"
	"github.com/jpalmerr/streampoll/internal/store"
)

// streamsCmd lists the stream definitions stored in the database.
var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "List stored streams",
	Long: `List the stream definitions stored in the configured database,
including the built-in system streams.

Example:
  streampoll streams -c config.yaml`,
	RunE: runStreams,
}

func init() {
	rootCmd.AddCommand(streamsCmd)

	streamsCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = streamsCmd.MarkFlagRequired("config")
}

func runStreams(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database == "" {
		return errors.New("no database configured: streams are only kept in memory while serving")
	}

	ctx := cmd.Context()
	st, err := store.NewSQLiteStore(ctx, cfg.Database, loggerFromFlags(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	streams, err := st.GetAllStreams(ctx)
	if err != nil {
		return fmt.Errorf("failed to read streams: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tENABLED\tSEARCHED\tQUERIES")
	for _, s := range streams {
		searched := "never"
		if !s.SearchedAt.IsZero() {
			searched = s.SearchedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n",
			s.ID, s.Name, s.Kind, s.Enabled, searched, strings.Join(s.Queries, "; "))
	}
	return tw.Flush()
}
