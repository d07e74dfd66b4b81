package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
)

// cachedBlob is the cache encoding of blob metadata.
// StorageKey is not serialized on domain.Blob, so it is carried explicitly.
type cachedBlob struct {
	Blob       *domain.Blob `json:"blob"`
	StorageKey string       `json:"storage_key"`
}

// CachedBlobRepository caches GetByID results in front of another BlobRepository.
// Blob rows are immutable, so only deletes need to invalidate.
// Existence checks always go to the database because reclaim decisions depend on them.
type CachedBlobRepository struct {
	BlobRepository
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedBlobRepository wraps repo with a metadata cache.
func NewCachedBlobRepository(repo BlobRepository, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedBlobRepository {
	return &CachedBlobRepository{
		BlobRepository: repo,
		cache:          cache,
		ttl:            ttl,
		logger:         logger.With().Str("component", "blob_cache").Logger(),
	}
}

// GetByID returns cached metadata when present.
func (r *CachedBlobRepository) GetByID(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	key := CacheKeys.BlobMeta(id.String())

	data, err := r.cache.Get(ctx, key)
	if err == nil {
		var cb cachedBlob
		if jsonErr := json.Unmarshal(data, &cb); jsonErr == nil && cb.Blob != nil {
			cb.Blob.StorageKey = cb.StorageKey
			return cb.Blob, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("cache read failed")
	}

	blob, err := r.BlobRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cachedBlob{Blob: blob, StorageKey: blob.StorageKey}); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("cache write failed")
		}
	}

	return blob, nil
}

// Delete removes the row and invalidates the cache entry.
func (r *CachedBlobRepository) Delete(ctx context.Context, id domain.BlobID) error {
	err := r.BlobRepository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

// DeleteIfUnreferenced removes the row when unreferenced and invalidates the cache entry.
func (r *CachedBlobRepository) DeleteIfUnreferenced(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	blob, err := r.BlobRepository.DeleteIfUnreferenced(ctx, id)
	if err == nil || errors.Is(err, domain.ErrBlobNotFound) {
		r.invalidate(ctx, id)
	}
	return blob, err
}

func (r *CachedBlobRepository) invalidate(ctx context.Context, id domain.BlobID) {
	if err := r.cache.Delete(ctx, CacheKeys.BlobMeta(id.String())); err != nil {
		r.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("cache invalidation failed")
	}
}

var _ BlobRepository = (*CachedBlobRepository)(nil)
