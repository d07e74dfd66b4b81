// Package repository defines data access interfaces for the Showcase portal.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/showcase-portal/internal/domain"
)

// =============================================================================
// Blob Repository
// =============================================================================

// BlobRepository defines the interface for blob metadata access.
// A blob row is what makes stored content readable: content without a row is
// treated as absent and is removed by the sweep.
type BlobRepository interface {
	// Create inserts blob metadata.
	Create(ctx context.Context, blob *domain.Blob) error

	// GetByID retrieves blob metadata.
	// Returns domain.ErrBlobNotFound if absent.
	GetByID(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Exists checks if a blob row exists.
	Exists(ctx context.Context, id domain.BlobID) (bool, error)

	// Delete removes blob metadata unconditionally.
	// Returns domain.ErrBlobNotFound if absent.
	Delete(ctx context.Context, id domain.BlobID) error

	// DeleteIfUnreferenced removes blob metadata only when no ledger entry
	// names the blob. The reference check and the delete happen atomically
	// with respect to ReferenceRepository.Add.
	// Returns domain.ErrBlobNotFound if absent, domain.ErrBlobReferenced if
	// an entry exists.
	DeleteIfUnreferenced(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// ListOlderThan returns blobs created before cutoff with id > afterID,
	// ordered by id. Pass an empty afterID for the first page.
	ListOlderThan(ctx context.Context, cutoff time.Time, afterID domain.BlobID, limit int) ([]*domain.Blob, error)

	// ListIDs returns the ids of every blob.
	ListIDs(ctx context.Context) ([]domain.BlobID, error)

	// Count returns the number of blobs and their total size.
	Count(ctx context.Context) (count int64, totalSize int64, err error)

	// CountUnreferenced returns the number of blobs created before cutoff
	// that have no ledger entry.
	CountUnreferenced(ctx context.Context, cutoff time.Time) (int64, error)
}

// =============================================================================
// Reference Repository (ledger)
// =============================================================================

// ReferenceRepository defines the interface for the reference ledger.
// Entries are unique per (blob, owner, kind); every mutation is idempotent.
type ReferenceRepository interface {
	// Add inserts an entry if absent. Duplicate inserts are a no-op.
	// Returns domain.ErrBlobNotFound if the blob does not exist.
	Add(ctx context.Context, ref *domain.Reference) error

	// Remove deletes an entry. Removing a missing entry is a no-op.
	Remove(ctx context.Context, blobID domain.BlobID, ownerID string, kind domain.FieldKind) error

	// RemoveAllForOwner deletes every entry of an owner and returns the
	// distinct blob ids that lost an entry.
	RemoveAllForOwner(ctx context.Context, ownerID string) ([]domain.BlobID, error)

	// RemoveAllForBlob deletes every entry naming the blob and returns how many were removed.
	RemoveAllForBlob(ctx context.Context, blobID domain.BlobID) (int64, error)

	// HasAny reports whether at least one entry names the blob.
	HasAny(ctx context.Context, blobID domain.BlobID) (bool, error)

	// CountForBlob returns the number of entries naming the blob.
	CountForBlob(ctx context.Context, blobID domain.BlobID) (int64, error)

	// ListBlobIDs returns the distinct blob ids with at least one entry.
	ListBlobIDs(ctx context.Context) ([]domain.BlobID, error)

	// ListAll returns every entry.
	ListAll(ctx context.Context) ([]*domain.Reference, error)

	// ListForOwner returns the entries of one owner.
	ListForOwner(ctx context.Context, ownerID string) ([]*domain.Reference, error)

	// CountStale returns the number of entries whose blob does not exist.
	CountStale(ctx context.Context) (int64, error)
}

// =============================================================================
// Project Repository
// =============================================================================

// ProjectRepository defines the interface for project documents.
type ProjectRepository interface {
	// Create inserts a new project. Returns domain.ErrUserNotFound if its
	// owner does not exist.
	Create(ctx context.Context, project *domain.Project) error

	// GetByID retrieves a project. Returns domain.ErrProjectNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// Update replaces an existing project whose stored version equals
	// project.Version and advances project.Version. Returns
	// domain.ErrProjectNotFound if absent and domain.ErrConcurrentUpdate if
	// the version is stale.
	Update(ctx context.Context, project *domain.Project) error

	// Delete removes a project. Returns domain.ErrProjectNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns projects with pagination, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.Project], error)
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update updates an existing user whose stored version equals
	// user.Version and advances user.Version. Returns
	// domain.ErrConcurrentUpdate if the version is stale.
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user by ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns all users with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail checks if a user with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// Normalize applies defaults and bounds to the options.
func (o ListOptions) Normalize() ListOptions {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	return o
}

const (
	// DefaultListLimit is used when no limit is given.
	DefaultListLimit = 50

	// MaxListLimit caps a single page.
	MaxListLimit = 500
)

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
