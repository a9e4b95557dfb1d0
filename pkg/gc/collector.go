// Package gc reconciles the two storage tiers of the fragment store.
//
// Metadata and blobs are written without a shared transaction, so a crash
// can leave:
//   - Orphan blobs: a payload with no metadata record, left by a delete that
//     removed the record but not the blob. These are unreachable and deleted.
//   - Dangling records: a record with a non-zero size and no payload, left
//     by a SetData whose blob write failed. These are reported, never
//     deleted; the owner can repair them by writing the payload again.
//
// The collector needs backends that can enumerate their keys
// (metadata.Enumerator and blob.Lister).
package gc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/store/blob"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"
)

// Collector periodically removes orphan blobs.
//
// Thread Safety: Safe for concurrent use. RunNow may be called while the
// background worker is running; runs are serialised.
type Collector struct {
	meta   metadata.MetadataStore
	blobs  blob.BlobStore
	config Config

	runMu     sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the background worker runs
	Enabled bool

	// Interval is how often to run collection (default: 1h)
	Interval time.Duration

	// BatchSize is how many orphans are deleted between cancellation checks
	// (default: 100)
	BatchSize int

	// DryRun logs what would be deleted without deleting
	DryRun bool
}

// NewCollector creates a collector over meta and blobs. The collector is not
// started; call Start for background runs or RunNow for a single pass.
//
// Returns an error if either store cannot enumerate its keys.
func NewCollector(meta metadata.MetadataStore, blobs blob.BlobStore, config Config) (*Collector, error) {
	if _, ok := meta.(metadata.Enumerator); !ok {
		return nil, fmt.Errorf("metadata store %T cannot enumerate keys", meta)
	}
	if _, ok := blobs.(blob.Lister); !ok {
		return nil, fmt.Errorf("blob store %T cannot list keys", blobs)
	}

	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &Collector{
		meta:   meta,
		blobs:  blobs,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the background worker. Later calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting garbage collector: interval=%s batch_size=%d dry_run=%v",
			c.config.Interval, c.config.BatchSize, c.config.DryRun)
		c.started.Store(true)
		go c.worker()
	})
}

// Stop signals the worker and waits for it to exit or ctx to expire.
// Safe to call multiple times and without a prior Start.
func (c *Collector) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if !c.started.Load() {
		return nil
	}

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one collection pass and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.Interval)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single pass:
//  1. List every blob key
//  2. List every metadata key
//  3. Orphans = blobs - records; dangling = records with size > 0 - blobs
//  4. Re-check and delete orphans in batches
//
// Blobs are listed before records. Metadata is always written before its
// blob, so any blob seen in step 1 already had its record when step 2 ran;
// a fragment created mid-pass cannot be mistaken for an orphan.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	// ===== Phase 1: blob keys =====
	blobKeys, err := c.blobs.(blob.Lister).ListKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("list blobs: %w", err)
	}
	stats.BlobCount = uint64(len(blobKeys))

	// ===== Phase 2: metadata keys =====
	recordKeys, err := c.meta.(metadata.Enumerator).ListAllKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("list metadata: %w", err)
	}
	stats.RecordCount = uint64(len(recordKeys))

	// ===== Phase 3: diff =====
	records := make(map[keys.Key]struct{}, len(recordKeys))
	for _, k := range recordKeys {
		records[k] = struct{}{}
	}
	blobsSet := make(map[keys.Key]struct{}, len(blobKeys))
	var orphans []keys.Key
	for _, k := range blobKeys {
		blobsSet[k] = struct{}{}
		if _, ok := records[k]; !ok {
			orphans = append(orphans, k)
		}
	}
	stats.OrphanedCount = uint64(len(orphans))

	for _, k := range recordKeys {
		if _, ok := blobsSet[k]; ok {
			continue
		}
		rec, found, err := c.meta.ReadMetadata(ctx, k.OwnerID, k.ID)
		if err != nil {
			return stats, fmt.Errorf("read %s: %w", k, err)
		}
		if found && rec.Size > 0 {
			stats.DanglingCount++
			logger.Warn("GC: record %s has size %d but no payload", k, rec.Size)
		}
	}

	if len(orphans) == 0 {
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would delete %d orphan blobs", len(orphans))
		for i, k := range orphans {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphans)-10)
				break
			}
			logger.Info("  - %s", k)
		}
		return stats, nil
	}

	// ===== Phase 4: delete =====
	for i := 0; i < len(orphans); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(i+c.config.BatchSize, len(orphans))
		for _, k := range orphans[i:end] {
			c.deleteOrphan(ctx, k, stats)
		}
	}

	logger.Info("GC: deleted %d orphan blobs, %d failed, %d skipped",
		stats.DeletedCount, stats.FailedCount, stats.SkippedCount)
	return stats, nil
}

// deleteOrphan removes k's blob unless a record appeared since the listing.
func (c *Collector) deleteOrphan(ctx context.Context, k keys.Key, stats *Stats) {
	_, found, err := c.meta.ReadMetadata(ctx, k.OwnerID, k.ID)
	if err != nil {
		logger.Debug("GC: re-check %s failed: %v", k, err)
		stats.FailedCount++
		return
	}
	if found {
		stats.SkippedCount++
		return
	}

	if _, err := c.blobs.DeleteBlob(ctx, k.OwnerID, k.ID); err != nil {
		logger.Debug("GC: delete %s failed: %v", k, err)
		stats.FailedCount++
		return
	}
	stats.DeletedCount++
}

// Stats contains statistics from a collection pass.
type Stats struct {
	StartTime     time.Time
	EndTime       time.Time
	RecordCount   uint64 // Metadata records seen
	BlobCount     uint64 // Blobs seen
	OrphanedCount uint64 // Blobs without a record
	DeletedCount  uint64 // Orphans deleted
	FailedCount   uint64 // Orphans whose deletion failed
	SkippedCount  uint64 // Orphans that gained a record before deletion
	DanglingCount uint64 // Records with size > 0 and no blob
}

// Duration returns the pass duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the pass.
func (s *Stats) Summary() string {
	return fmt.Sprintf("records=%d blobs=%d orphaned=%d deleted=%d failed=%d skipped=%d dangling=%d duration=%s",
		s.RecordCount, s.BlobCount, s.OrphanedCount, s.DeletedCount,
		s.FailedCount, s.SkippedCount, s.DanglingCount, s.Duration())
}
