package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/config"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fragments server",
	Long: `Start every enabled protocol adapter over the configured stores.

SIGINT or SIGTERM triggers a graceful shutdown: adapters stop accepting
requests, in-flight requests finish within the shutdown timeout, then the
garbage collector and stores are closed.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	logger.Info("Fragments %s starting", version)
	logger.Info("Log level: %s, format: %s", cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		if err := metrics.SetBuildInfo(version, commit); err != nil {
			logger.Warn("Failed to publish build info: %v", err)
		}
		go func() {
			if err := m.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	repo, st, err := config.InitializeRepository(ctx, cfg, m.FragmentMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close stores: %v", err)
		}
	}()
	logger.Info("Storage ready: metadata=%s, blob=%s", cfg.Metadata.Type, cfg.Blob.Type)

	collector, err := config.CreateCollector(st, &cfg.GC)
	if err != nil {
		// Not fatal: the API works without orphan cleanup
		logger.Warn("Garbage collection unavailable: %v", err)
	} else {
		collector.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := collector.Stop(stopCtx); err != nil {
				logger.Warn("Garbage collector stop: %v", err)
			}
		}()
	}

	srv := server.New(repo, cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, m.HTTPMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
