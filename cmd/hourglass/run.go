package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zulandar/hourglass/internal/hourglass"
	"github.com/zulandar/hourglass/internal/logging"
	"github.com/zulandar/hourglass/internal/status"
)

type runOptions struct {
	configPath     string
	configExplicit bool
	once           bool
	migrate        bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the turn deadline scheduler",
		Long: `Runs the scheduler. Each tick reads up to batch_size open turns and:
  1. Records expires_at from the response window if missing
  2. Sends the initial prompt over the derived channels
  3. Sends one warning when the deadline is within warning_threshold
  4. Resolves expired turns by AI autofill or a host override reminder

With --once a single batch is processed and the command exits. Otherwise
ticks repeat on the configured interval or cron schedule until SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configExplicit = cmd.Flags().Changed("config")
			return runRun(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to Hourglass config file")
	cmd.Flags().BoolVar(&opts.once, "once", false, "process one batch and exit")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "auto-migrate the turn tables before starting")
	return cmd
}

func runRun(ctx context.Context, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts.configPath, opts.configExplicit)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}

	// Fail on a bad schedule before touching the database.
	sched, err := hourglass.ParseSchedule(cfg.Schedule, cfg.Interval)
	if err != nil {
		return err
	}

	svc, err := buildServices(cfg, opts.migrate)
	if err != nil {
		return err
	}
	defer svc.Close()

	if opts.once {
		report, err := svc.poller.Tick(ctx)
		if err != nil {
			// The next scheduled invocation retries; a failed batch is not a crash.
			log.Error().Err(err).Msg("hourglass: tick failed")
			return nil
		}
		hourglass.LogReport(report)
		fmt.Fprintf(out, "Processed %d turn(s): %d prompted, %d warned, %d auto-filled, %d host reminder(s), %d failed\n",
			report.Processed, report.Prompted, report.Warned, report.AutoFilled, report.HostReminders, report.Failed)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.poller.Run(gctx, sched)
	})
	if cfg.StatusAddr != "" {
		g.Go(func() error {
			return status.Start(gctx, status.StartOpts{
				Reporter: svc.poller,
				Addr:     cfg.StatusAddr,
				Version:  Version,
			})
		})
	}

	fmt.Fprintf(out, "Hourglass running (interval=%s schedule=%q)\n", cfg.Interval, cfg.Schedule)
	return g.Wait()
}
