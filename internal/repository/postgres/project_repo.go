package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

const projectColumns = `id, title, description, poster, thumbnail, showcase_photos, external_url, owner_id, version, created_at, updated_at`

// projectRepository implements repository.ProjectRepository.
// Showcase photos are stored as TEXT[].
type projectRepository struct {
	db *DB
}

// NewProjectRepository creates a new PostgreSQL project repository.
func NewProjectRepository(db *DB) repository.ProjectRepository {
	return &projectRepository{db: db}
}

// Create inserts a new project.
func (r *projectRepository) Create(ctx context.Context, p *domain.Project) error {
	query := `INSERT INTO projects (` + projectColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Pool.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.Poster,
		p.Thumbnail,
		photosParam(p.ShowcasePhotos),
		p.ExternalURL,
		p.OwnerID,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: project owner does not exist", domain.ErrUserNotFound)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project.
func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	p, err := scanProject(r.db.Pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// Update replaces an existing project if its stored version still equals
// p.Version, then advances p.Version.
func (r *projectRepository) Update(ctx context.Context, p *domain.Project) error {
	query := `
		UPDATE projects
		SET title = $1, description = $2, poster = $3, thumbnail = $4, showcase_photos = $5,
		    external_url = $6, owner_id = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10
	`
	result, err := r.db.Pool.Exec(ctx, query,
		p.Title,
		p.Description,
		p.Poster,
		p.Thumbnail,
		photosParam(p.ShowcasePhotos),
		p.ExternalURL,
		p.OwnerID,
		p.UpdatedAt,
		p.ID,
		p.Version,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: project owner does not exist", domain.ErrUserNotFound)
		}
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return updateMiss(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, p.ID, domain.ErrProjectNotFound)
	}
	p.Version++
	return nil
}

// Delete removes a project.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// List returns projects newest first.
func (r *projectRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Project], error) {
	opts = opts.Normalize()

	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `
		SELECT ` + projectColumns + `
		FROM projects
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Project, error) {
		return scanProject(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}

	return &repository.ListResult[domain.Project]{
		Items:  projects,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	p := &domain.Project{}
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Poster,
		&p.Thumbnail,
		&p.ShowcasePhotos,
		&p.ExternalURL,
		&p.OwnerID,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.ShowcasePhotos == nil {
		p.ShowcasePhotos = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func photosParam(photos []string) []string {
	if photos == nil {
		return []string{}
	}
	return photos
}

var _ repository.ProjectRepository = (*projectRepository)(nil)
