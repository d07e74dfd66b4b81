package sqlite

import "github.com/prn-tf/showcase-portal/internal/repository"

// NewRepositories creates every SQLite repository on one database.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Blob:      NewBlobRepository(db),
		Reference: NewReferenceRepository(db),
		Project:   NewProjectRepository(db),
		User:      NewUserRepository(db),
	}
}
