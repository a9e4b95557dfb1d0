package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/config"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/spf13/cobra"
)

var gcDryRun bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one garbage collection pass",
	Long: `Delete blobs whose metadata record no longer exists, then exit.

The server must not be running against the same BadgerDB directory, since
Badger holds an exclusive lock. Use --dry-run to only report orphans.`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report orphans without deleting them")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := config.InitializeStore(ctx, cfg, metrics.NewNoopFragmentMetrics())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	gcCfg := cfg.GC
	if cmd.Flags().Changed("dry-run") {
		gcCfg.DryRun = gcDryRun
	}

	collector, err := config.CreateCollector(st, &gcCfg)
	if err != nil {
		return err
	}

	stats, err := collector.RunNow(ctx)
	if err != nil {
		return fmt.Errorf("garbage collection failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
	return nil
}
