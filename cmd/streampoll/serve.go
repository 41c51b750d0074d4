package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/streampoll"
	"github.com/jpalmerr/streampoll/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates the CLI logger from the --log-level and --log-format
// flags.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loggerFromFlags(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return newLogger(level, format, os.Stderr)
}

// serveCmd starts polling and the control API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and the control API",
	Long: `Start polling streams and serve the control API.

The server will:
  - Load configuration from the specified YAML file
  - Open the database and seed the configured streams
  - Poll every enabled stream in turn
  - Serve the control API on the configured port

Signals:
  SIGINT, SIGTERM  shut down
  SIGHUP           rebuild the schedule from the database
  SIGUSR1          stop polling (resume with SIGHUP or the control API)

Example:
  streampoll serve -c config.yaml
  streampoll serve --config /etc/streampoll/config.yaml --log-format text`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := loggerFromFlags(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"streams", len(cfg.Streams),
		"database", cfg.Database,
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	control := make(chan streampoll.Signal)
	go translateSignals(ctx, sigCh, control, logger)

	opts = append(opts,
		streampoll.WithLogger(logger),
		streampoll.WithControl(control),
	)

	p, err := streampoll.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// translateSignals maps SIGHUP to a restart and SIGUSR1 to a stop until ctx
// is done.
func translateSignals(ctx context.Context, in <-chan os.Signal, out chan<- streampoll.Signal, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-in:
			var s streampoll.Signal
			switch sig {
			case syscall.SIGHUP:
				s = streampoll.SignalRestart
			case syscall.SIGUSR1:
				s = streampoll.SignalStop
			default:
				continue
			}
			logger.Info("os signal received", "signal", sig.String(), "action", s.String())
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}
}
