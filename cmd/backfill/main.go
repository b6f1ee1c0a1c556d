package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/installhub/api/internal/platform/bootstrap"
	"github.com/installhub/api/internal/platform/config"
	"github.com/installhub/api/internal/platform/observability"
	"github.com/installhub/api/internal/services"
)

type backfillFlags struct {
	dryRun   bool
	workers  int
	deadline time.Duration
}

// runFunc executes a backfill with the resolved flag overrides.
type runFunc func(ctx context.Context, flags backfillFlags, changed func(string) bool) (services.BackfillReport, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(runBackfill, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(run runFunc, out io.Writer) *cobra.Command {
	var flags backfillFlags
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Create the device shipment record for every project that lacks one",
		Long: "Walks every project, derives shipment lines from its first milestone and creates the " +
			"shipment when none exists. Existing shipments are never modified, so the job can be re-run safely.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := run(cmd.Context(), flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d projects failed", report.Failed, report.Processed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "derive shipments without writing them")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "number of projects processed concurrently (defaults to APP_BACKFILL_WORKERS)")
	cmd.Flags().DurationVar(&flags.deadline, "deadline", 0, "abort the run after this duration (defaults to APP_BACKFILL_DEADLINE)")
	return cmd
}

func runBackfill(ctx context.Context, flags backfillFlags, changed func(string) bool) (services.BackfillReport, error) {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		return services.BackfillReport{}, fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("backfill")
	ctx = observability.WithLogger(ctx, logger)

	rt, err := bootstrap.New(ctx, logger, flagOverrides(flags, changed))
	if err != nil {
		return services.BackfillReport{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Close(closeCtx)
	}()

	backfill := rt.Container.Services.Backfill
	if backfill == nil {
		return services.BackfillReport{}, fmt.Errorf("shipment backfill is not configured")
	}
	if deadline := rt.Config.Backfill.Deadline; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	return backfill.Run(ctx)
}

// flagOverrides applies only the flags set on the command line so environment configuration
// stays the default.
func flagOverrides(flags backfillFlags, changed func(string) bool) bootstrap.Option {
	return func(cfg *config.Config) {
		if changed("dry-run") {
			cfg.Backfill.DryRun = flags.dryRun
		}
		if changed("workers") && flags.workers > 0 {
			cfg.Backfill.Workers = flags.workers
		}
		if changed("deadline") && flags.deadline > 0 {
			cfg.Backfill.Deadline = flags.deadline
		}
	}
}
