package config

import (
	"context"
	"fmt"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/store/blob"
	blobfs "github.com/marmos91/fragments/pkg/store/blob/fs"
	blobmemory "github.com/marmos91/fragments/pkg/store/blob/memory"
	blobs3 "github.com/marmos91/fragments/pkg/store/blob/s3"
	"github.com/marmos91/fragments/pkg/store/metadata"
	"github.com/marmos91/fragments/pkg/store/metadata/badger"
	metamemory "github.com/marmos91/fragments/pkg/store/metadata/memory"
	"github.com/marmos91/fragments/pkg/store/metadata/sqlite"
	"github.com/mitchellh/mapstructure"
)

// CreateMetadataStore creates a metadata store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": in-memory storage, lost on restart
//   - "badger": BadgerDB storage, persistent
//   - "sqlite": single-file SQLite database, persistent
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.MetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return metamemory.NewMemoryMetadataStore(), nil
	case "badger":
		return createBadgerMetadataStore(ctx, cfg.Badger)
	case "sqlite":
		return createSQLiteMetadataStore(ctx, cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger, sqlite)", cfg.Type)
	}
}

// createBadgerMetadataStore creates a BadgerDB-based persistent metadata store.
func createBadgerMetadataStore(ctx context.Context, options map[string]any) (metadata.MetadataStore, error) {
	var storeCfg badger.BadgerMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	store, err := badger.NewBadgerMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("Badger metadata store initialized: path=%s", storeCfg.DBPath)
	return store, nil
}

// createSQLiteMetadataStore creates a SQLite-backed metadata store.
func createSQLiteMetadataStore(ctx context.Context, options map[string]any) (metadata.MetadataStore, error) {
	var storeCfg sqlite.SQLiteMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid sqlite config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("sqlite metadata store: path is required")
	}

	store, err := sqlite.NewSQLiteMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	logger.Info("SQLite metadata store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// CreateBlobStore creates a blob store based on configuration.
//
// Supported types:
//   - "memory": in-memory storage, lost on restart
//   - "filesystem": one file per fragment under a base directory
//   - "s3": Amazon S3 or a compatible service (MinIO, Localstack)
func CreateBlobStore(ctx context.Context, cfg *BlobConfig) (blob.BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return blobmemory.NewMemoryBlobStore(), nil
	case "filesystem":
		return createFilesystemBlobStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q (supported: memory, filesystem, s3)", cfg.Type)
	}
}

// createFilesystemBlobStore creates a filesystem-backed blob store.
func createFilesystemBlobStore(ctx context.Context, options map[string]any) (blob.BlobStore, error) {
	var storeCfg blobfs.FSBlobStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem config: %w", err)
	}

	if storeCfg.BasePath == "" {
		return nil, fmt.Errorf("filesystem blob store: path is required")
	}

	store, err := blobfs.NewFSBlobStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem store: %w", err)
	}

	return store, nil
}

// createS3BlobStore creates an S3-backed blob store.
func createS3BlobStore(ctx context.Context, options map[string]any) (blob.BlobStore, error) {
	var storeCfg blobs3.S3BlobStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	store, err := blobs3.NewS3BlobStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// decodeOptions decodes a type-specific options map into a store config.
// Values read from YAML or the environment arrive as strings, so weak typing
// and duration parsing are enabled.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}
