package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

// referenceRepository implements repository.ReferenceRepository.
type referenceRepository struct {
	db *DB
}

// NewReferenceRepository creates a new PostgreSQL reference ledger.
func NewReferenceRepository(db *DB) repository.ReferenceRepository {
	return &referenceRepository{db: db}
}

// Add holds FOR KEY SHARE on the blob row while inserting, which blocks a
// concurrent DeleteIfUnreferenced until the entry is committed.
func (r *referenceRepository) Add(ctx context.Context, ref *domain.Reference) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM blobs WHERE id = $1 FOR KEY SHARE`, ref.BlobID.String()).Scan(&one)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrBlobNotFound
			}
			return fmt.Errorf("failed to lock blob: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO blob_references (blob_id, owner_id, kind, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (blob_id, owner_id, kind) DO NOTHING
		`, ref.BlobID.String(), ref.OwnerID, string(ref.Kind), ref.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add reference: %w", err)
		}
		return nil
	})
}

// Remove deletes an entry if present.
func (r *referenceRepository) Remove(ctx context.Context, blobID domain.BlobID, ownerID string, kind domain.FieldKind) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM blob_references WHERE blob_id = $1 AND owner_id = $2 AND kind = $3`,
		blobID.String(), ownerID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to remove reference: %w", err)
	}
	return nil
}

// RemoveAllForOwner deletes every entry of an owner.
func (r *referenceRepository) RemoveAllForOwner(ctx context.Context, ownerID string) ([]domain.BlobID, error) {
	query := `
		WITH removed AS (
			DELETE FROM blob_references WHERE owner_id = $1 RETURNING blob_id
		)
		SELECT DISTINCT blob_id FROM removed ORDER BY blob_id
	`
	return queryBlobIDs(ctx, r.db.Pool, query, ownerID)
}

// RemoveAllForBlob deletes every entry naming the blob.
func (r *referenceRepository) RemoveAllForBlob(ctx context.Context, blobID domain.BlobID) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM blob_references WHERE blob_id = $1`, blobID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to remove blob references: %w", err)
	}
	return result.RowsAffected(), nil
}

// HasAny reports whether at least one entry names the blob.
func (r *referenceRepository) HasAny(ctx context.Context, blobID domain.BlobID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blob_references WHERE blob_id = $1)`, blobID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check references: %w", err)
	}
	return exists, nil
}

// CountForBlob returns the number of entries naming the blob.
func (r *referenceRepository) CountForBlob(ctx context.Context, blobID domain.BlobID) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM blob_references WHERE blob_id = $1`, blobID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count references: %w", err)
	}
	return count, nil
}

// ListBlobIDs returns the distinct referenced blob ids.
func (r *referenceRepository) ListBlobIDs(ctx context.Context) ([]domain.BlobID, error) {
	return queryBlobIDs(ctx, r.db.Pool, `SELECT DISTINCT blob_id FROM blob_references ORDER BY blob_id`)
}

// ListAll returns every entry.
func (r *referenceRepository) ListAll(ctx context.Context) ([]*domain.Reference, error) {
	return r.list(ctx, `
		SELECT blob_id, owner_id, kind, created_at
		FROM blob_references
		ORDER BY blob_id, owner_id, kind
	`)
}

// ListForOwner returns the entries of one owner.
func (r *referenceRepository) ListForOwner(ctx context.Context, ownerID string) ([]*domain.Reference, error) {
	return r.list(ctx, `
		SELECT blob_id, owner_id, kind, created_at
		FROM blob_references
		WHERE owner_id = $1
		ORDER BY kind, blob_id
	`, ownerID)
}

// CountStale returns the number of entries whose blob does not exist.
func (r *referenceRepository) CountStale(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM blob_references r
		WHERE NOT EXISTS (SELECT 1 FROM blobs b WHERE b.id = r.blob_id)
	`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale references: %w", err)
	}
	return count, nil
}

func (r *referenceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Reference, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Reference, error) {
		var blobID, kind string
		ref := &domain.Reference{}
		if err := row.Scan(&blobID, &ref.OwnerID, &kind, &ref.CreatedAt); err != nil {
			return nil, err
		}
		ref.BlobID = domain.BlobID(blobID)
		ref.Kind = domain.FieldKind(kind)
		ref.CreatedAt = ref.CreatedAt.UTC()
		return ref, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan references: %w", err)
	}
	return refs, nil
}

var _ repository.ReferenceRepository = (*referenceRepository)(nil)
