package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"aqua-monitor/internal/backend"
	"aqua-monitor/internal/logging"
	"aqua-monitor/internal/monitor"
	"aqua-monitor/internal/sink"
	"aqua-monitor/internal/telemetry"
)

var (
	replayInput  string
	replayDelay  time.Duration
	replayFormat string
)

// errReplayFailed reports a capture that ended without an end notice or with
// a backend error.
var errReplayFailed = errors.New("replay ended in error")

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a captured analysis stream",
	Long:  "replay feeds a captured stream file through the monitor and prints each snapshot followed by the final state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer closeLog()

		w, cleanup, err := newStateWriter(replayFormat, cfg.Targets(), cmd.OutOrStdout(), "")
		if err != nil {
			return err
		}
		defer cleanup()

		src := &backend.FileSource{Path: replayInput, Delay: replayDelay}
		final, err := runReplay(logging.NewContext(cmd.Context(), log), src, cfg.Targets(), w, log)
		if err != nil {
			return err
		}
		health := telemetry.Summarize(final, cfg.Targets())
		fmt.Fprintf(cmd.OutOrStdout(), "replay finished: total_fish=%d alerts=%d health=%s\n", final.TotalFish, len(final.Alerts), health)
		return nil
	},
}

// runReplay drives one session over src and writes every snapshot until the
// session leaves the connecting and connected states.
func runReplay(ctx context.Context, src monitor.Backend, targets []telemetry.SpeciesTarget, w sink.StateWriter, log *slog.Logger) (telemetry.MonitoringState, error) {
	ctl := monitor.NewController(src, targets, monitor.WithLogger(log))
	if err := ctl.Start(ctx); err != nil {
		return telemetry.MonitoringState{}, err
	}
	id, updates := ctl.Subscribe()
	defer ctl.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			_ = ctl.Stop(context.WithoutCancel(ctx))
			return ctl.Snapshot(), ctx.Err()
		case s := <-updates:
			if err := w.WriteState(s); err != nil {
				_ = ctl.Stop(context.WithoutCancel(ctx))
				return s, fmt.Errorf("write snapshot: %w", err)
			}
			switch s.ConnectionStatus {
			case telemetry.StatusDisconnected:
				return s, nil
			case telemetry.StatusError:
				return s, errReplayFailed
			}
		}
	}
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to captured stream file")
	replayCmd.Flags().DurationVar(&replayDelay, "delay", 0, "Pause between reads (e.g. 50ms) to approximate live delivery")
	replayCmd.Flags().StringVar(&replayFormat, "format", "text", "Output: json or text")
	replayCmd.MarkFlagRequired("input")
}
