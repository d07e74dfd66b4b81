package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/pkg/crypto"
	"github.com/prn-tf/showcase-portal/internal/repository"
	"github.com/prn-tf/showcase-portal/internal/storage"
)

// DefaultContentType is served when neither stored metadata nor the filename
// identify the content.
const DefaultContentType = "application/octet-stream"

// extensionContentTypes maps common image and video extensions to media types.
var extensionContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
	".avif": "image/avif",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
}

// ResolveContentType picks the type to serve for a blob: the stored type,
// then the filename extension, then DefaultContentType.
func ResolveContentType(stored, filename string) string {
	stored = strings.TrimSpace(stored)
	if stored != "" && !strings.EqualFold(stored, DefaultContentType) {
		return stored
	}
	if ct, ok := extensionContentTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return DefaultContentType
}

// BlobService is the blob store: content lives in a storage.Backend and
// metadata in the blobs table. A blob is readable only once its row exists.
type BlobService struct {
	blobRepo      repository.BlobRepository
	refRepo       repository.ReferenceRepository
	storage       storage.Backend
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	maxUploadSize int64
}

// BlobServiceConfig contains blob store settings.
type BlobServiceConfig struct {
	// MaxUploadSize caps a single upload in bytes. Zero means unlimited.
	MaxUploadSize int64
}

// NewBlobService creates a new BlobService.
func NewBlobService(
	blobRepo repository.BlobRepository,
	refRepo repository.ReferenceRepository,
	backend storage.Backend,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config BlobServiceConfig,
) *BlobService {
	return &BlobService{
		blobRepo:      blobRepo,
		refRepo:       refRepo,
		storage:       backend,
		metrics:       m,
		logger:        logger.With().Str("service", "blob").Logger(),
		maxUploadSize: config.MaxUploadSize,
	}
}

// UploadInput contains the data needed to store a blob.
type UploadInput struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// Upload streams content into the store and records its metadata.
// On any failure no readable blob is left behind.
func (s *BlobService) Upload(ctx context.Context, input UploadInput) (*domain.Blob, error) {
	if input.Body == nil {
		return nil, ErrNoContent
	}

	blob, err := s.upload(ctx, input)
	if blob != nil {
		s.metrics.ObserveUpload(blob.Size, err)
	} else {
		s.metrics.ObserveUpload(0, err)
	}
	return blob, err
}

func (s *BlobService) upload(ctx context.Context, input UploadInput) (*domain.Blob, error) {
	id, err := crypto.GenerateBlobID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	hr := crypto.NewLimitedHashReader(input.Body, s.maxUploadSize)
	written, err := s.storage.Store(ctx, id.String(), hr)
	if err != nil {
		if errors.Is(err, crypto.ErrSizeLimitExceeded) {
			return nil, domain.NewDomainError(domain.ErrBlobTooLarge, fmt.Sprintf("limit is %d bytes", s.maxUploadSize), input.Filename)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, ctx.Err())
		}
		s.logger.Error().Err(err).Str("blob_id", id.String()).Msg("failed to store content")
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	blob := domain.NewBlob(id, strings.TrimSpace(input.Filename), strings.TrimSpace(input.ContentType), written, hr.SHA256())

	if err := s.blobRepo.Create(ctx, blob); err != nil {
		s.logger.Error().Err(err).Str("blob_id", id.String()).Msg("failed to record blob metadata")
		s.discardContent(id)
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	s.logger.Info().
		Str("blob_id", id.String()).
		Str("filename", blob.Filename).
		Int64("size", blob.Size).
		Msg("blob uploaded")

	return blob, nil
}

// discardContent removes content whose metadata could not be recorded.
// The caller's context may already be cancelled, so cleanup runs detached.
func (s *BlobService) discardContent(id domain.BlobID) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.storage.Delete(ctx, id.String()); err != nil && !storage.IsNotFound(err) {
		s.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("failed to discard unrecorded content; sweep will remove it")
	}
}

// BlobContent is an open blob ready to be served.
type BlobContent struct {
	Blob        *domain.Blob
	ContentType string
	Body        io.ReadCloser
}

// Download opens a blob for reading. The caller must close Body.
func (s *BlobService) Download(ctx context.Context, id domain.BlobID) (*BlobContent, error) {
	content, err := s.download(ctx, id)
	s.metrics.ObserveDownload(err)
	return content, err
}

func (s *BlobService) download(ctx context.Context, id domain.BlobID) (*BlobContent, error) {
	blob, err := s.blobRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil, domain.ErrBlobNotFound
		}
		s.logger.Error().Err(err).Str("blob_id", id.String()).Msg("failed to get blob metadata")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	body, err := s.storage.Retrieve(ctx, blob.StorageKey)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.Warn().Str("blob_id", id.String()).Msg("blob metadata exists but content is missing")
			return nil, domain.ErrBlobNotFound
		}
		s.logger.Error().Err(err).Str("blob_id", id.String()).Msg("failed to retrieve content")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &BlobContent{
		Blob:        blob,
		ContentType: ResolveContentType(blob.ContentType, blob.Filename),
		Body:        body,
	}, nil
}

// Delete removes a blob. It returns domain.ErrBlobNotFound when no row
// exists, which callers performing cleanup treat as success.
func (s *BlobService) Delete(ctx context.Context, id domain.BlobID) error {
	err := s.blobRepo.Delete(ctx, id)
	s.metrics.ObserveDelete(err)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return domain.ErrBlobNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.removeContent(ctx, id)
	s.logger.Info().Str("blob_id", id.String()).Msg("blob deleted")
	return nil
}

// Purge deletes a blob regardless of its references and removes every
// ledger entry naming it. An explicit delete wins over reference bookkeeping.
// Returns the number of ledger entries removed.
func (s *BlobService) Purge(ctx context.Context, id domain.BlobID) (int64, error) {
	err := s.blobRepo.Delete(ctx, id)
	s.metrics.ObserveDelete(err)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return 0, domain.ErrBlobNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	removed, err := s.refRepo.RemoveAllForBlob(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("failed to purge references; sweep will repair them")
		removed = 0
	}

	s.removeContent(ctx, id)

	s.logger.Info().
		Str("blob_id", id.String()).
		Int64("references_deleted", removed).
		Msg("blob purged")

	return removed, nil
}

// removeContent deletes content after its row is gone.
// Failures only leave stray content, which the sweep removes.
func (s *BlobService) removeContent(ctx context.Context, id domain.BlobID) {
	if err := s.storage.Delete(ctx, id.String()); err != nil && !storage.IsNotFound(err) {
		s.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("failed to delete content; sweep will remove it")
	}
}

// Exists reports whether a readable blob exists.
func (s *BlobService) Exists(ctx context.Context, id domain.BlobID) (bool, error) {
	exists, err := s.blobRepo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return exists, nil
}

// ListIDs returns the id of every blob.
func (s *BlobService) ListIDs(ctx context.Context) ([]domain.BlobID, error) {
	ids, err := s.blobRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return ids, nil
}
