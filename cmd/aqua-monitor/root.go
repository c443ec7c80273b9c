package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"aqua-monitor/internal/config"
	"aqua-monitor/internal/logging"
)

var (
	rootConfigPath string
	rootSchemaPath string
	rootLogFile    string
)

var rootCmd = &cobra.Command{
	Use:   "aqua-monitor",
	Short: "Live fish population monitor",
	Long:  "aqua-monitor follows the detection backend's analysis stream and raises alerts on species counts and geofence crossings.",

	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "config/monitor.yaml", "Path to monitor configuration YAML")
	rootCmd.PersistentFlags().StringVar(&rootSchemaPath, "schema", "", "Path to CUE schema file (default: embedded schema)")
	rootCmd.PersistentFlags().StringVar(&rootLogFile, "log-file", "", "Write logs to this file instead of STDERR")
	rootCmd.AddCommand(watchCmd, stopCmd, replayCmd, validateCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(rootConfigPath, rootSchemaPath)
}

// newLogger builds the process logger. quiet discards logs unless a log file
// is set, so the dashboard owns the terminal.
func newLogger(cfg *config.Config, quiet bool) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	cleanup := func() {}
	switch {
	case rootLogFile != "":
		f, err := os.OpenFile(rootLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		cleanup = func() { f.Close() }
	case quiet:
		return logging.Discard(), cleanup, nil
	}
	l, err := logging.New(w, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return l, cleanup, nil
}
