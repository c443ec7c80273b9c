package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aqua-monitor/internal/admin"
	"aqua-monitor/internal/backend"
	"aqua-monitor/internal/config"
	"aqua-monitor/internal/dashboard"
	"aqua-monitor/internal/logging"
	"aqua-monitor/internal/metrics"
	"aqua-monitor/internal/monitor"
	"aqua-monitor/internal/sink"
)

var (
	watchFormat  string
	watchOutput  string
	watchNoAdmin bool
	watchNoStart bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live analysis stream",
	Long: "watch opens the detection backend's analysis stream and shows counts and alerts, either in a " +
		"terminal dashboard or as snapshot lines on STDOUT. The admin server exposes the state, start/stop " +
		"controls and Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cfg, watchFormat == "tui")
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		m := metrics.New()
		ctl := monitor.NewController(
			backend.NewClient(cfg.BackendClient()),
			cfg.Targets(),
			monitor.WithRecorder(m),
			monitor.WithLogger(log),
		)

		if !watchNoAdmin {
			srv := admin.NewServer(ctl, m.Handler(), log)
			go func() {
				if err := srv.Start(ctx, cfg.Admin.Addr); err != nil {
					log.Error("admin server failed", "err", err)
				}
			}()
		}

		if !watchNoStart {
			if err := ctl.Start(ctx); err != nil {
				return err
			}
		}
		defer shutdown(cfg, ctl, log)

		if watchFormat == "tui" {
			return dashboard.Run(ctx, ctl)
		}

		w, cleanup, err := newStateWriter(watchFormat, cfg.Targets(), cmd.OutOrStdout(), watchOutput)
		if err != nil {
			return err
		}
		defer cleanup()
		id, updates := ctl.Subscribe()
		defer ctl.Unsubscribe(id)
		if err := sink.Drain(ctx, updates, w); err != nil && ctx.Err() == nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return nil
	},
}

// shutdown releases the backend analysis on exit.
func shutdown(cfg *config.Config, ctl *monitor.Controller, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.StopTimeout)
	defer cancel()
	if err := ctl.Stop(logging.NewContext(ctx, log)); err != nil {
		log.Warn("stop on exit failed", "err", err)
		return
	}
	log.Info("monitor stopped")
}

func init() {
	watchCmd.Flags().StringVar(&watchFormat, "format", "tui", "Output: tui, json or text")
	watchCmd.Flags().StringVar(&watchOutput, "output", "", "Also record snapshots to this JSONL file (json/text formats)")
	watchCmd.Flags().BoolVar(&watchNoAdmin, "no-admin", false, "Do not start the admin HTTP server")
	watchCmd.Flags().BoolVar(&watchNoStart, "no-start", false, "Wait for a start request instead of connecting immediately")
}
