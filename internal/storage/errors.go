package storage

import "errors"

var (
	// ErrBlobNotFound indicates no content is stored under the key.
	ErrBlobNotFound = errors.New("blob content not found")

	// ErrInvalidKey indicates the key cannot be mapped to a storage location.
	ErrInvalidKey = errors.New("invalid storage key")
)

// IsNotFound reports whether err means the content does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
