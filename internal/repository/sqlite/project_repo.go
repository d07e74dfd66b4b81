package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

const projectColumns = `id, title, description, poster, thumbnail, showcase_photos, external_url, owner_id, version, created_at, updated_at`

// projectRepository implements repository.ProjectRepository for SQLite.
// Showcase photos are stored as a JSON array.
type projectRepository struct {
	db *DB
}

// NewProjectRepository creates a new SQLite project repository.
func NewProjectRepository(db *DB) repository.ProjectRepository {
	return &projectRepository{db: db}
}

// Create inserts a new project.
func (r *projectRepository) Create(ctx context.Context, p *domain.Project) error {
	photos, err := encodePhotos(p.ShowcasePhotos)
	if err != nil {
		return err
	}

	query := `INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.Title,
		p.Description,
		p.Poster,
		p.Thumbnail,
		photos,
		p.ExternalURL,
		ownerParam(p.OwnerID),
		p.Version,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
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
	p, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id.String()))
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
	photos, err := encodePhotos(p.ShowcasePhotos)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET title = ?, description = ?, poster = ?, thumbnail = ?, showcase_photos = ?,
		    external_url = ?, owner_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		p.Title,
		p.Description,
		p.Poster,
		p.Thumbnail,
		photos,
		p.ExternalURL,
		ownerParam(p.OwnerID),
		formatTime(p.UpdatedAt),
		p.ID.String(),
		p.Version,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: project owner does not exist", domain.ErrUserNotFound)
		}
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return r.updateMiss(ctx, p.ID)
	}
	p.Version++
	return nil
}

// updateMiss tells a missing project from a stale version.
func (r *projectRepository) updateMiss(ctx context.Context, id uuid.UUID) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, id.String()).Scan(&count); err != nil {
		return fmt.Errorf("failed to check project existence: %w", err)
	}
	if count == 0 {
		return domain.ErrProjectNotFound
	}
	return domain.ErrConcurrentUpdate
}

// Delete removes a project.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// List returns projects newest first.
func (r *projectRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Project], error) {
	opts = opts.Normalize()

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `
		SELECT ` + projectColumns + `
		FROM projects
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return &repository.ListResult[domain.Project]{
		Items:  projects,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	p := &domain.Project{}
	var id, photos, createdAt, updatedAt string
	var ownerID sql.NullString

	err := row.Scan(
		&id,
		&p.Title,
		&p.Description,
		&p.Poster,
		&p.Thumbnail,
		&photos,
		&p.ExternalURL,
		&ownerID,
		&p.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid project id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(photos), &p.ShowcasePhotos); err != nil {
		return nil, fmt.Errorf("invalid showcase photos for project %s: %w", id, err)
	}
	if p.ShowcasePhotos == nil {
		p.ShowcasePhotos = []string{}
	}
	if ownerID.Valid {
		if owner, err := uuid.Parse(ownerID.String); err == nil {
			p.OwnerID = &owner
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func encodePhotos(photos []string) (string, error) {
	if photos == nil {
		photos = []string{}
	}
	data, err := json.Marshal(photos)
	if err != nil {
		return "", fmt.Errorf("failed to encode showcase photos: %w", err)
	}
	return string(data), nil
}

func ownerParam(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

var _ repository.ProjectRepository = (*projectRepository)(nil)
