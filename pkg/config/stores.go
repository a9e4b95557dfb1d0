package config

import (
	"context"
	"fmt"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/gc"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/store"
)

// InitializeStore opens the configured metadata and blob backends and wraps
// them in the storage facade.
//
// If the blob store cannot be created the metadata store is closed again, so
// a failed startup never leaves a BadgerDB or SQLite lock behind.
func InitializeStore(ctx context.Context, cfg *Config, m metrics.FragmentMetrics) (*store.Store, error) {
	meta, err := CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}

	blobs, err := CreateBlobStore(ctx, &cfg.Blob)
	if err != nil {
		if closeErr := meta.Close(); closeErr != nil {
			logger.Warn("Failed to close metadata store: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	logger.Debug("Storage initialized: metadata=%s blob=%s", cfg.Metadata.Type, cfg.Blob.Type)
	return store.New(meta, blobs, m), nil
}

// CreateCollector builds the orphan blob collector over st's backends.
// The collector is returned stopped; the caller decides whether to Start it
// or run a single pass.
func CreateCollector(st *store.Store, cfg *GCConfig) (*gc.Collector, error) {
	collector, err := gc.NewCollector(st.Metadata(), st.Blobs(), gc.Config{
		Enabled:   cfg.Enabled,
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
		DryRun:    cfg.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create garbage collector: %w", err)
	}
	return collector, nil
}
