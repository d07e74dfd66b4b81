package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

// referenceRepository implements repository.ReferenceRepository for SQLite.
type referenceRepository struct {
	db *DB
}

// NewReferenceRepository creates a new SQLite reference ledger.
func NewReferenceRepository(db *DB) repository.ReferenceRepository {
	return &referenceRepository{db: db}
}

// Add inserts the entry only while the blob row exists.
func (r *referenceRepository) Add(ctx context.Context, ref *domain.Reference) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT OR IGNORE INTO blob_references (blob_id, owner_id, kind, created_at)
			SELECT ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM blobs WHERE id = ?)
		`

		result, err := tx.ExecContext(ctx, query,
			ref.BlobID.String(),
			ref.OwnerID,
			string(ref.Kind),
			formatTime(ref.CreatedAt),
			ref.BlobID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to add reference: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected > 0 {
			return nil
		}

		// Nothing inserted: either a duplicate or the blob is gone.
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM blobs WHERE id = ?)`, ref.BlobID.String()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check blob existence: %w", err)
		}
		if exists == 0 {
			return domain.ErrBlobNotFound
		}
		return nil
	})
}

// Remove deletes an entry if present.
func (r *referenceRepository) Remove(ctx context.Context, blobID domain.BlobID, ownerID string, kind domain.FieldKind) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM blob_references WHERE blob_id = ? AND owner_id = ? AND kind = ?`,
		blobID.String(), ownerID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to remove reference: %w", err)
	}
	return nil
}

// RemoveAllForOwner deletes every entry of an owner.
func (r *referenceRepository) RemoveAllForOwner(ctx context.Context, ownerID string) ([]domain.BlobID, error) {
	var ids []domain.BlobID

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = queryBlobIDs(ctx, tx,
			`SELECT DISTINCT blob_id FROM blob_references WHERE owner_id = ? ORDER BY blob_id`, ownerID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM blob_references WHERE owner_id = ?`, ownerID); err != nil {
			return fmt.Errorf("failed to remove owner references: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveAllForBlob deletes every entry naming the blob.
func (r *referenceRepository) RemoveAllForBlob(ctx context.Context, blobID domain.BlobID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blob_references WHERE blob_id = ?`, blobID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to remove blob references: %w", err)
	}
	return result.RowsAffected()
}

// HasAny reports whether at least one entry names the blob.
func (r *referenceRepository) HasAny(ctx context.Context, blobID domain.BlobID) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blob_references WHERE blob_id = ?)`, blobID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check references: %w", err)
	}
	return exists == 1, nil
}

// CountForBlob returns the number of entries naming the blob.
func (r *referenceRepository) CountForBlob(ctx context.Context, blobID domain.BlobID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blob_references WHERE blob_id = ?`, blobID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count references: %w", err)
	}
	return count, nil
}

// ListBlobIDs returns the distinct referenced blob ids.
func (r *referenceRepository) ListBlobIDs(ctx context.Context) ([]domain.BlobID, error) {
	return queryBlobIDs(ctx, r.db, `SELECT DISTINCT blob_id FROM blob_references ORDER BY blob_id`)
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
		WHERE owner_id = ?
		ORDER BY kind, blob_id
	`, ownerID)
}

// CountStale returns the number of entries whose blob does not exist.
func (r *referenceRepository) CountStale(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM blob_references r
		LEFT JOIN blobs b ON b.id = r.blob_id
		WHERE b.id IS NULL
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale references: %w", err)
	}
	return count, nil
}

func (r *referenceRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Reference, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer rows.Close()

	var refs []*domain.Reference
	for rows.Next() {
		var blobID, kind, createdAt string
		ref := &domain.Reference{}
		if err := rows.Scan(&blobID, &ref.OwnerID, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		ref.BlobID = domain.BlobID(blobID)
		ref.Kind = domain.FieldKind(kind)
		ref.CreatedAt = parseTime(createdAt)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

var _ repository.ReferenceRepository = (*referenceRepository)(nil)
