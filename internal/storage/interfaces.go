// Package storage defines interfaces for blob content backends.
// The storage layer is responsible for persisting and retrieving raw blob bytes.
// Blob metadata and reference tracking live in the repository layer.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend defines the interface for content backends.
// Implementations include the local filesystem and S3-compatible object stores.
// The interface is stateless and safe for concurrent use.
type Backend interface {
	// Store writes content from a reader under the given key.
	// The write is atomic: a reader observing the key sees either nothing or
	// the complete content. A failed or cancelled Store leaves no readable object.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Storage key (the blob id)
	//   - reader: Source of the content to store
	//
	// Returns:
	//   - written: Number of bytes stored
	//   - err: Error if storage fails (the reader's error is returned unwrapped)
	Store(ctx context.Context, key string, reader io.Reader) (written int64, err error)

	// Retrieve retrieves content by key.
	// Returns a ReadCloser that must be closed after use.
	//
	// Returns:
	//   - io.ReadCloser: Stream of the content (caller must close)
	//   - err: ErrBlobNotFound if content doesn't exist, or other error
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes content by key.
	//
	// Returns:
	//   - err: ErrBlobNotFound if content doesn't exist, or other error
	Delete(ctx context.Context, key string) error

	// Exists checks if content with the given key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Walk calls fn for every stored object.
	// Iteration stops at the first error returned by fn, which Walk returns.
	Walk(ctx context.Context, fn func(ObjectInfo) error) error
}

// ObjectInfo describes a stored object as seen by the backend.
type ObjectInfo struct {
	// Key is the storage key.
	Key string

	// Size is the content length in bytes.
	Size int64

	// ModTime is the last modification time reported by the backend.
	ModTime time.Time
}
