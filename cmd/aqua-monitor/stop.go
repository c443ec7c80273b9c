package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aqua-monitor/internal/backend"
	"aqua-monitor/internal/monitor"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the backend to stop its current analysis",
	Long:  "stop sends a single stop request to the detection backend without opening a stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		res, err := backend.NewClient(cfg.BackendClient()).StopAnalysis(cmd.Context())
		if err != nil {
			return fmt.Errorf("%w: %w", monitor.ErrStopFailed, err)
		}
		if !res.Success {
			return &monitor.StopRejectedError{Message: res.Message}
		}
		msg := res.Message
		if msg == "" {
			msg = "analysis stopped"
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}
