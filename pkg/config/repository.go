package config

import (
	"context"
	"fmt"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/convert"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/store"
)

// InitializeRepository creates a fully configured fragment repository from
// the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Opens the metadata and blob stores
//  2. Builds the conversion engine over the default media type registry
//  3. Binds both into a fragment.Repository
//
// The returned store is the facade under the repository; the caller closes
// it on shutdown and may hand it to CreateCollector.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	repo, st, err := config.InitializeRepository(ctx, cfg, metrics.NewNoopFragmentMetrics())
//	if err != nil {
//	    log.Fatalf("Failed to initialize repository: %v", err)
//	}
//	defer st.Close()
func InitializeRepository(ctx context.Context, cfg *Config, m metrics.FragmentMetrics) (*fragment.Repository, *store.Store, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration is nil")
	}

	logger.Debug("Initializing repository from configuration")

	st, err := InitializeStore(ctx, cfg, m)
	if err != nil {
		return nil, nil, err
	}

	engine, err := convert.NewEngine(mediatype.Default(), convert.WithMetrics(m))
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to build conversion engine: %w", err)
	}

	return fragment.NewRepository(st, engine), st, nil
}
