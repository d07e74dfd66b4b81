package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

const blobColumns = `id, filename, content_type, size, checksum, storage_key, created_at`

// blobRepository implements repository.BlobRepository.
type blobRepository struct {
	db *DB
}

// NewBlobRepository creates a new PostgreSQL blob repository.
func NewBlobRepository(db *DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

// Create inserts blob metadata.
func (r *blobRepository) Create(ctx context.Context, blob *domain.Blob) error {
	query := `INSERT INTO blobs (` + blobColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Pool.Exec(ctx, query,
		blob.ID.String(),
		blob.Filename,
		blob.ContentType,
		blob.Size,
		blob.Checksum,
		blob.StorageKey,
		blob.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	return nil
}

// GetByID retrieves blob metadata.
func (r *blobRepository) GetByID(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	blob, err := scanBlob(r.db.Pool.QueryRow(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = $1`, id.String()))
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
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM blobs WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return exists, nil
}

// Delete removes blob metadata unconditionally.
func (r *blobRepository) Delete(ctx context.Context, id domain.BlobID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}

// DeleteIfUnreferenced locks the blob row FOR UPDATE before checking the
// ledger. Ledger inserts take FOR KEY SHARE on the same row, so an insert
// either commits before the check sees it or finds the row gone.
func (r *blobRepository) DeleteIfUnreferenced(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	var deleted *domain.Blob

	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		blob, err := scanBlob(tx.QueryRow(ctx,
			`SELECT `+blobColumns+` FROM blobs WHERE id = $1 FOR UPDATE`, id.String()))
		if err != nil {
			if isNoRows(err) {
				return domain.ErrBlobNotFound
			}
			return fmt.Errorf("failed to lock blob: %w", err)
		}

		var referenced bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM blob_references WHERE blob_id = $1)`, id.String()).Scan(&referenced)
		if err != nil {
			return fmt.Errorf("failed to check references: %w", err)
		}
		if referenced {
			return domain.ErrBlobReferenced
		}

		if _, err := tx.Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id.String()); err != nil {
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
		WHERE created_at < $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff, afterID.String(), limit)
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
	return queryBlobIDs(ctx, r.db.Pool, `SELECT id FROM blobs ORDER BY id`)
}

// Count returns the number of blobs and their total size.
func (r *blobRepository) Count(ctx context.Context) (int64, int64, error) {
	var count, size int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0)::BIGINT FROM blobs`).Scan(&count, &size)
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
		WHERE b.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM blob_references r WHERE r.blob_id = b.id)
	`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unreferenced blobs: %w", err)
	}
	return count, nil
}

func scanBlob(row pgx.Row) (*domain.Blob, error) {
	blob := &domain.Blob{}
	var id string

	err := row.Scan(
		&id,
		&blob.Filename,
		&blob.ContentType,
		&blob.Size,
		&blob.Checksum,
		&blob.StorageKey,
		&blob.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	blob.ID = domain.BlobID(id)
	blob.CreatedAt = blob.CreatedAt.UTC()
	return blob, nil
}

func queryBlobIDs(ctx context.Context, q Querier, query string, args ...any) ([]domain.BlobID, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BlobID, error) {
		var id string
		err := row.Scan(&id)
		return domain.BlobID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan blob ids: %w", err)
	}
	return ids, nil
}

var _ repository.BlobRepository = (*blobRepository)(nil)
