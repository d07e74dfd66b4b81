package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/lock"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository"
	"github.com/prn-tf/showcase-portal/internal/storage"
)

// strayContentMinAge protects content whose metadata row is about to be
// written by an upload in flight.
const strayContentMinAge = 15 * time.Minute

// Reclaimer deletes blobs that lost their last reference.
type Reclaimer interface {
	// ReclaimIfOrphaned deletes the blob if no ledger entry names it.
	// Returns true only if this call deleted it.
	ReclaimIfOrphaned(ctx context.Context, id domain.BlobID) (bool, error)
}

// ReclaimService reclaims orphaned blobs and reconciles the blob store with
// the reference ledger.
type ReclaimService struct {
	blobRepo repository.BlobRepository
	refRepo  repository.ReferenceRepository
	storage  storage.Backend
	locker   lock.Locker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   ReclaimConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// ReclaimConfig contains reclamation configuration.
type ReclaimConfig struct {
	// Enabled determines if the periodic sweep runs.
	Enabled bool

	// Interval is how often to run the sweep.
	Interval time.Duration

	// GracePeriod is the cutoff age used by scheduled sweeps.
	// Younger blobs may belong to uploads not yet linked to a document.
	GracePeriod time.Duration

	// BatchSize is the page size used when scanning blobs.
	BatchSize int

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool

	// LockTTL bounds how long one sweep holds the sweep lock between extensions.
	LockTTL time.Duration
}

// DefaultReclaimConfig returns sensible defaults.
func DefaultReclaimConfig() ReclaimConfig {
	return ReclaimConfig{
		Enabled:     true,
		Interval:    1 * time.Hour,
		GracePeriod: 1 * time.Hour,
		BatchSize:   500,
		DryRun:      false,
		LockTTL:     30 * time.Minute,
	}
}

// NewReclaimService creates a new reclaim service.
func NewReclaimService(
	blobRepo repository.BlobRepository,
	refRepo repository.ReferenceRepository,
	backend storage.Backend,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config ReclaimConfig,
) *ReclaimService {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultReclaimConfig().BatchSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultReclaimConfig().LockTTL
	}
	return &ReclaimService{
		blobRepo: blobRepo,
		refRepo:  refRepo,
		storage:  backend,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "reclaim").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// =============================================================================
// Single-blob reclaim
// =============================================================================

// ReclaimIfOrphaned deletes the blob if no ledger entry names it.
//
// The reference check and the metadata delete run in one database
// transaction, so a reference added concurrently either lands first and
// keeps the blob, or fails because the blob is already gone. A blob that is
// already absent is not an error: concurrent callers for the same orphan all
// succeed and exactly one reports true.
func (s *ReclaimService) ReclaimIfOrphaned(ctx context.Context, id domain.BlobID) (bool, error) {
	blob, err := s.blobRepo.DeleteIfUnreferenced(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBlobReferenced):
		s.metrics.ObserveReclaim(metrics.OutcomeReferenced)
		return false, nil
	case errors.Is(err, domain.ErrBlobNotFound):
		s.metrics.ObserveReclaim(metrics.OutcomeNotFound)
		return false, nil
	default:
		s.metrics.ObserveReclaim(metrics.OutcomeError)
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.storage.Delete(ctx, blob.StorageKey); err != nil && !storage.IsNotFound(err) {
		// The row is gone so the blob is unreadable; the sweep removes the content.
		s.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("failed to delete reclaimed content")
	}

	s.metrics.ObserveReclaim(metrics.OutcomeDeleted)
	s.logger.Info().
		Str("blob_id", id.String()).
		Int64("size", blob.Size).
		Msg("reclaimed orphaned blob")

	return true, nil
}

// =============================================================================
// Sweep
// =============================================================================

// SweepOptions controls a sweep.
type SweepOptions struct {
	// OlderThan limits blob reclamation to blobs at least this old.
	// Zero considers every blob that existed when the sweep started.
	OlderThan time.Duration

	// DryRun counts what would be repaired without changing anything.
	DryRun bool
}

// SweepResult contains the result of a sweep.
type SweepResult struct {
	// BlobsDeleted is the number of orphaned blobs reclaimed.
	BlobsDeleted int `json:"blobsDeleted"`

	// BytesFreed is the total size of the reclaimed blobs.
	BytesFreed int64 `json:"bytesFreed"`

	// ReferencesRepaired is the number of ledger entries removed because
	// their blob no longer exists.
	ReferencesRepaired int `json:"referencesRepaired"`

	// StrayContentRemoved is the number of stored objects removed because
	// no blob row describes them.
	StrayContentRemoved int `json:"strayContentRemoved"`

	// Skipped is the number of scanned blobs still referenced.
	Skipped int `json:"skipped"`

	// Errors is the number of items that could not be processed.
	Errors int `json:"errors"`

	// DryRun reports whether changes were only counted.
	DryRun bool `json:"dryRun"`

	// Cutoff is the creation time bound used for blob reclamation.
	Cutoff time.Time `json:"cutoff"`

	// Duration is how long the sweep took.
	Duration time.Duration `json:"duration"`
}

// Sweep reconciles the blob store with the ledger in three passes:
// orphaned blobs older than the cutoff are reclaimed, ledger entries naming
// missing blobs are removed, and stored content without a blob row is deleted.
//
// Only one sweep runs at a time across every instance sharing the locker;
// ErrSweepInProgress is returned otherwise. Per-item failures are counted in
// Errors and processing continues. If ctx is cancelled the partial result is
// returned together with the context error.
func (s *ReclaimService) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{
		DryRun: opts.DryRun,
		Cutoff: start.Add(-opts.OlderThan).UTC(),
	}

	l := lock.NewLock(s.locker, lock.Keys.ReclaimSweep())
	acquired, err := l.Acquire(ctx, s.config.LockTTL)
	if err != nil {
		s.metrics.ObserveSweep(0, 0, err)
		return nil, fmt.Errorf("%w: failed to acquire sweep lock: %v", ErrInternalError, err)
	}
	if !acquired {
		return nil, ErrSweepInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := l.Release(releaseCtx); err != nil {
			s.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	s.logger.Info().
		Time("cutoff", result.Cutoff).
		Bool("dry_run", opts.DryRun).
		Msg("starting sweep")

	err = s.reclaimOrphans(ctx, l, result)
	if err == nil {
		err = s.repairStaleReferences(ctx, result)
	}
	if err == nil {
		err = s.removeStrayContent(ctx, start, result)
	}

	result.Duration = time.Since(start)
	s.metrics.ObserveSweep(result.Duration, int64(result.ReferencesRepaired), err)

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.
		Int("blobs_deleted", result.BlobsDeleted).
		Int64("bytes_freed", result.BytesFreed).
		Int("references_repaired", result.ReferencesRepaired).
		Int("stray_content_removed", result.StrayContentRemoved).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Bool("dry_run", result.DryRun).
		Dur("duration", result.Duration).
		Msg("sweep completed")

	return result, err
}

// reclaimOrphans pages through blobs older than the cutoff and reclaims
// each one with no reference. Only context errors abort the pass.
func (s *ReclaimService) reclaimOrphans(ctx context.Context, l *lock.Lock, result *SweepResult) error {
	var after domain.BlobID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.blobRepo.ListOlderThan(ctx, result.Cutoff, after, s.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("failed to list blobs")
			result.Errors++
			return nil
		}

		for _, blob := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.sweepBlob(ctx, blob, result)
		}

		if len(page) < s.config.BatchSize {
			return nil
		}
		after = page[len(page)-1].ID

		if err := l.Extend(ctx, s.config.LockTTL); err != nil {
			s.logger.Warn().Err(err).Msg("failed to extend sweep lock")
		}
	}
}

func (s *ReclaimService) sweepBlob(ctx context.Context, blob *domain.Blob, result *SweepResult) {
	if result.DryRun {
		referenced, err := s.refRepo.HasAny(ctx, blob.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("blob_id", blob.ID.String()).Msg("failed to check references")
			result.Errors++
			return
		}
		if referenced {
			result.Skipped++
			return
		}
		s.logger.Info().
			Str("blob_id", blob.ID.String()).
			Int64("size", blob.Size).
			Msg("[DRY RUN] would reclaim orphaned blob")
		result.BlobsDeleted++
		result.BytesFreed += blob.Size
		return
	}

	deleted, err := s.ReclaimIfOrphaned(ctx, blob.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("blob_id", blob.ID.String()).Msg("failed to reclaim blob")
		result.Errors++
		return
	}
	if deleted {
		result.BlobsDeleted++
		result.BytesFreed += blob.Size
		return
	}
	result.Skipped++
}

// repairStaleReferences removes ledger entries whose blob no longer exists.
//
// Entries are listed before blob ids. An entry can only be added while its
// blob exists and ids are never reused, so an entry whose blob is missing
// from the later id listing names a deleted blob.
func (s *ReclaimService) repairStaleReferences(ctx context.Context, result *SweepResult) error {
	entries, err := s.refRepo.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("failed to list references")
		result.Errors++
		return nil
	}

	existing, err := s.blobIDSet(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("failed to list blob ids")
		result.Errors++
		return nil
	}

	for _, ref := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := existing[ref.BlobID]; ok {
			continue
		}

		if result.DryRun {
			s.logger.Info().
				Str("blob_id", ref.BlobID.String()).
				Str("owner_id", ref.OwnerID).
				Str("kind", ref.Kind.String()).
				Msg("[DRY RUN] would remove stale reference")
			result.ReferencesRepaired++
			continue
		}

		if err := s.refRepo.Remove(ctx, ref.BlobID, ref.OwnerID, ref.Kind); err != nil {
			s.logger.Error().Err(err).Str("blob_id", ref.BlobID.String()).Msg("failed to remove stale reference")
			result.Errors++
			continue
		}
		s.logger.Info().
			Str("blob_id", ref.BlobID.String()).
			Str("owner_id", ref.OwnerID).
			Str("kind", ref.Kind.String()).
			Msg("removed stale reference")
		result.ReferencesRepaired++
	}
	return nil
}

// removeStrayContent deletes stored objects that no blob row describes,
// such as content left by an upload whose metadata insert and cleanup both
// failed. Objects newer than the cutoff or strayContentMinAge are kept.
func (s *ReclaimService) removeStrayContent(ctx context.Context, start time.Time, result *SweepResult) error {
	bound := result.Cutoff
	if limit := start.Add(-strayContentMinAge); limit.Before(bound) {
		bound = limit
	}

	existing, err := s.blobIDSet(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("failed to list blob ids")
		result.Errors++
		return nil
	}

	err = s.storage.Walk(ctx, func(obj storage.ObjectInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := domain.ParseBlobID(obj.Key)
		if err != nil || id.String() != obj.Key {
			return nil
		}
		if _, ok := existing[id]; ok || !obj.ModTime.Before(bound) {
			return nil
		}

		// The snapshot may predate a concurrent upload.
		exists, err := s.blobRepo.Exists(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("blob_id", obj.Key).Msg("failed to check blob existence")
			result.Errors++
			return nil
		}
		if exists {
			return nil
		}

		if result.DryRun {
			s.logger.Info().Str("key", obj.Key).Int64("size", obj.Size).Msg("[DRY RUN] would remove stray content")
			result.StrayContentRemoved++
			return nil
		}

		if err := s.storage.Delete(ctx, obj.Key); err != nil && !storage.IsNotFound(err) {
			s.logger.Error().Err(err).Str("key", obj.Key).Msg("failed to remove stray content")
			result.Errors++
			return nil
		}
		s.logger.Info().Str("key", obj.Key).Int64("size", obj.Size).Msg("removed stray content")
		result.StrayContentRemoved++
		result.BytesFreed += obj.Size
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Msg("failed to walk stored content")
		result.Errors++
	}
	return nil
}

func (s *ReclaimService) blobIDSet(ctx context.Context) (map[domain.BlobID]struct{}, error) {
	ids, err := s.blobRepo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[domain.BlobID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// =============================================================================
// Scheduler
// =============================================================================

// Start begins the periodic sweep.
func (s *ReclaimService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("grace_period", s.config.GracePeriod).
		Int("batch_size", s.config.BatchSize).
		Bool("dry_run", s.config.DryRun).
		Msg("starting reclaim scheduler")

	go s.runLoop()
}

// Stop stops the periodic sweep and waits for a running sweep to finish.
func (s *ReclaimService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	s.logger.Info().Msg("reclaim scheduler stopped")
}

func (s *ReclaimService) runLoop() {
	defer close(s.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopChan
		cancel()
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			return
		}
	}
}

func (s *ReclaimService) runOnce(ctx context.Context) {
	_, err := s.Sweep(ctx, SweepOptions{
		OlderThan: s.config.GracePeriod,
		DryRun:    s.config.DryRun,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Debug().Msg("sweep lock held elsewhere, skipping run")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error().Err(err).Msg("scheduled sweep failed")
	}
}

// =============================================================================
// Stats
// =============================================================================

// ReclaimStats describes the current drift between blobs and the ledger.
type ReclaimStats struct {
	TotalBlobs      int64         `json:"totalBlobs"`
	TotalSize       int64         `json:"totalSize"`
	OrphanBlobs     int64         `json:"orphanBlobs"`
	StaleReferences int64         `json:"staleReferences"`
	GracePeriod     time.Duration `json:"gracePeriod"`
	SweepRunning    bool          `json:"sweepRunning"`
}

// Stats returns current reclamation statistics. OrphanBlobs counts only
// blobs older than the grace period.
func (s *ReclaimService) Stats(ctx context.Context) (*ReclaimStats, error) {
	total, size, err := s.blobRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	orphans, err := s.blobRepo.CountUnreferenced(ctx, time.Now().Add(-s.config.GracePeriod))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	stale, err := s.refRepo.CountStale(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	running, err := s.locker.IsHeld(ctx, lock.Keys.ReclaimSweep())
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to check sweep lock")
	}

	return &ReclaimStats{
		TotalBlobs:      total,
		TotalSize:       size,
		OrphanBlobs:     orphans,
		StaleReferences: stale,
		GracePeriod:     s.config.GracePeriod,
		SweepRunning:    running,
	}, nil
}

var _ Reclaimer = (*ReclaimService)(nil)
