package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

const blobColumns = `id, filename, content_type, size, checksum, storage_key, created_at`

// blobRepository implements repository.BlobRepository for SQLite.
type blobRepository struct {
	db *DB
}

// NewBlobRepository creates a new SQLite blob repository.
func NewBlobRepository(db *DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

// Create inserts blob metadata.
func (r *blobRepository) Create(ctx context.Context, blob *domain.Blob) error {
	query := `INSERT INTO blobs (` + blobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		blob.ID.String(),
		blob.Filename,
		blob.ContentType,
		blob.Size,
		blob.Checksum,
		blob.StorageKey,
		formatTime(blob.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	return nil
}

// GetByID retrieves blob metadata.
func (r *blobRepository) GetByID(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE id = ?`

	blob, err := scanBlob(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return blob, nil
}

// Exists checks if a blob row exists.
func (r *blobRepository) Exists(ctx context.Context, id domain.BlobID) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM blobs WHERE id = ?)`, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return exists == 1, nil
}

// Delete removes blob metadata unconditionally.
func (r *blobRepository) Delete(ctx context.Context, id domain.BlobID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}

// DeleteIfUnreferenced removes the row inside an immediate transaction, so
// no ledger insert can land between the reference check and the delete.
func (r *blobRepository) DeleteIfUnreferenced(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	var deleted *domain.Blob

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		blob, err := scanBlob(tx.QueryRowContext(ctx,
			`SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id.String()))
		if err != nil {
			if isNoRows(err) {
				return domain.ErrBlobNotFound
			}
			return fmt.Errorf("failed to get blob: %w", err)
		}

		var referenced int
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM blob_references WHERE blob_id = ?)`, id.String()).Scan(&referenced)
		if err != nil {
			return fmt.Errorf("failed to check references: %w", err)
		}
		if referenced == 1 {
			return domain.ErrBlobReferenced
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete blob: %w", err)
		}

		deleted = blob
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ListOlderThan returns a page of blobs created before cutoff.
func (r *blobRepository) ListOlderThan(ctx context.Context, cutoff time.Time, afterID domain.BlobID, limit int) ([]*domain.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blobs
		WHERE created_at < ? AND id > ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, formatTime(cutoff), afterID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var blobs []*domain.Blob
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

// ListIDs returns the ids of every blob.
func (r *blobRepository) ListIDs(ctx context.Context) ([]domain.BlobID, error) {
	return queryBlobIDs(ctx, r.db, `SELECT id FROM blobs ORDER BY id`)
}

// Count returns the number of blobs and their total size.
func (r *blobRepository) Count(ctx context.Context) (int64, int64, error) {
	var count, size int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs`).Scan(&count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count blobs: %w", err)
	}
	return count, size, nil
}

// CountUnreferenced returns the number of orphaned blobs created before cutoff.
func (r *blobRepository) CountUnreferenced(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM blobs b
		LEFT JOIN blob_references r ON r.blob_id = b.id
		WHERE r.blob_id IS NULL AND b.created_at < ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, formatTime(cutoff)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unreferenced blobs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlob(row rowScanner) (*domain.Blob, error) {
	blob := &domain.Blob{}
	var id, createdAt string

	err := row.Scan(
		&id,
		&blob.Filename,
		&blob.ContentType,
		&blob.Size,
		&blob.Checksum,
		&blob.StorageKey,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	blob.ID = domain.BlobID(id)
	blob.CreatedAt = parseTime(createdAt)
	return blob, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryBlobIDs(ctx context.Context, q querier, query string, args ...any) ([]domain.BlobID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob ids: %w", err)
	}
	defer rows.Close()

	var ids []domain.BlobID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan blob id: %w", err)
		}
		ids = append(ids, domain.BlobID(id))
	}
	return ids, rows.Err()
}

var _ repository.BlobRepository = (*blobRepository)(nil)
