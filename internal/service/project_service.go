package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

// ProjectService handles project documents and keeps the reference ledger
// in step with their media fields.
type ProjectService struct {
	projectRepo repository.ProjectRepository
	refs        *referenceTracker
	logger      zerolog.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(
	projectRepo repository.ProjectRepository,
	refRepo repository.ReferenceRepository,
	blobs *BlobService,
	reclaimer Reclaimer,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ProjectService {
	logger = logger.With().Str("service", "project").Logger()
	return &ProjectService{
		projectRepo: projectRepo,
		refs:        newReferenceTracker(refRepo, blobs, reclaimer, m, logger),
		logger:      logger,
	}
}

// CreateProjectInput contains the data needed to create a project.
// Media files are uploaded and linked into their fields before the insert.
type CreateProjectInput struct {
	Title          string
	Description    string
	Poster         string
	Thumbnail      string
	ShowcasePhotos []string
	ExternalURL    string
	OwnerID        *uuid.UUID
	Media          []MediaUpload
}

// Create creates a project. If any upload or the insert fails, every blob
// uploaded for it is deleted again.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*domain.Project, error) {
	project := domain.NewProject(strings.TrimSpace(input.Title), input.Description)
	project.Poster = strings.TrimSpace(input.Poster)
	project.Thumbnail = strings.TrimSpace(input.Thumbnail)
	project.ExternalURL = strings.TrimSpace(input.ExternalURL)
	project.OwnerID = input.OwnerID
	if input.ShowcasePhotos != nil {
		project.ShowcasePhotos = append(project.ShowcasePhotos, input.ShowcasePhotos...)
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	err := s.refs.create(ctx, project, input.Media, func(ctx context.Context) error {
		if err := s.projectRepo.Create(ctx, project); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.NewDomainError(domain.ErrUserNotFound, "project owner does not exist", project.OwnerID.String())
			}
			s.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to create project")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("project_id", project.ID.String()).
		Str("title", project.Title).
		Int("media", len(input.Media)).
		Msg("project created")

	return project, nil
}

// Get retrieves a project by ID.
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		s.logger.Error().Err(err).Str("project_id", id.String()).Msg("failed to get project")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return project, nil
}

// List returns projects with pagination.
func (s *ProjectService) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Project], error) {
	result, err := s.projectRepo.List(ctx, opts.Normalize())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list projects")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}

// UpdateProjectInput contains the fields to change. Nil fields are kept.
type UpdateProjectInput struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Poster         *string   `json:"poster"`
	Thumbnail      *string   `json:"thumbnail"`
	ShowcasePhotos *[]string `json:"showcase_photos"`
	ExternalURL    *string   `json:"external_url"`
}

// Update applies input to a project. References new to the project are
// recorded before the write; references it no longer carries are removed
// afterwards and their blobs reclaimed if orphaned.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, input UpdateProjectInput) (*domain.Project, error) {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := prev.Clone()
	if input.Title != nil {
		next.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		next.Description = *input.Description
	}
	if input.Poster != nil {
		next.Poster = strings.TrimSpace(*input.Poster)
	}
	if input.Thumbnail != nil {
		next.Thumbnail = strings.TrimSpace(*input.Thumbnail)
	}
	if input.ShowcasePhotos != nil {
		next.ShowcasePhotos = append([]string{}, (*input.ShowcasePhotos)...)
	}
	if input.ExternalURL != nil {
		next.ExternalURL = strings.TrimSpace(*input.ExternalURL)
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.refs.update(ctx, prev, next, s.write(next)); err != nil {
		return nil, err
	}

	s.logger.Info().Str("project_id", id.String()).Msg("project updated")
	return next, nil
}

// SetPoster replaces the poster URL of a project.
func (s *ProjectService) SetPoster(ctx context.Context, id uuid.UUID, url string) (*domain.Project, error) {
	return s.Update(ctx, id, UpdateProjectInput{Poster: &url})
}

// AttachMedia uploads a file and links it into a field of an existing
// project. Scalar fields are replaced and the list field is appended to.
func (s *ProjectService) AttachMedia(ctx context.Context, id uuid.UUID, upload MediaUpload) (*domain.Project, *domain.Blob, error) {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	next := prev.Clone()
	next.UpdatedAt = time.Now().UTC()

	blob, err := s.refs.attach(ctx, prev, next, upload, s.write(next))
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("project_id", id.String()).
		Str("blob_id", blob.ID.String()).
		Str("kind", upload.Kind.String()).
		Msg("media attached to project")

	return next, blob, nil
}

// Delete removes a project, then its ledger entries, then every blob left
// without references.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.projectRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			return domain.ErrProjectNotFound
		}
		s.logger.Error().Err(err).Str("project_id", id.String()).Msg("failed to delete project")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.refs.releaseOwner(ctx, id.String())

	s.logger.Info().Str("project_id", id.String()).Msg("project deleted")
	return nil
}

func (s *ProjectService) write(project *domain.Project) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := s.projectRepo.Update(ctx, project); err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) || errors.Is(err, domain.ErrConcurrentUpdate) {
				return err
			}
			s.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to update project")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	}
}
