package postgres

import "github.com/prn-tf/showcase-portal/internal/repository"

// NewRepositories creates every PostgreSQL repository on one pool.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Blob:      NewBlobRepository(db),
		Reference: NewReferenceRepository(db),
		Project:   NewProjectRepository(db),
		User:      NewUserRepository(db),
	}
}
