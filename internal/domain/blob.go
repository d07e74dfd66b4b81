// Package domain contains the core business entities for the Showcase portal.
package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BlobIDLength is the length of a rendered blob identifier (12 bytes, hex encoded).
const BlobIDLength = 24

// MediaURLPrefix is the path prefix of URLs that point into the blob store.
// Document fields holding such a URL are tracked by the reference ledger.
const MediaURLPrefix = "/media/"

// BlobID is the opaque, store-generated identifier of a blob.
// Format: 8 hex chars of big-endian unix seconds followed by 16 random hex chars.
type BlobID string

// ParseBlobID validates and normalizes a blob identifier.
func ParseBlobID(s string) (BlobID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != BlobIDLength {
		return "", NewDomainError(ErrInvalidBlobID, "must be 24 hex characters", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", NewDomainError(ErrInvalidBlobID, "must be 24 hex characters", s)
	}
	return BlobID(s), nil
}

// String returns the identifier as a string.
func (id BlobID) String() string {
	return string(id)
}

// URL returns the blob-reference URL for this blob.
func (id BlobID) URL() string {
	return MediaURLPrefix + string(id)
}

// IsMediaURL reports whether a document field value points into the blob store.
// It does not validate the identifier part.
func IsMediaURL(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), MediaURLPrefix)
}

// ParseMediaURL extracts the blob id from a blob-reference URL.
//
// It returns ok=false with no error for empty values and external URLs, which
// are never tracked. A value carrying the media prefix with a malformed id is
// rejected with ErrInvalidReference.
func ParseMediaURL(value string) (id BlobID, ok bool, err error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, MediaURLPrefix) {
		return "", false, nil
	}

	id, err = ParseBlobID(strings.TrimPrefix(value, MediaURLPrefix))
	if err != nil {
		return "", false, NewDomainError(ErrInvalidReference, fmt.Sprintf("malformed media URL %q", value), "")
	}
	return id, true, nil
}

// Blob describes a stored binary object.
// Blobs are immutable once written: replacing content means uploading a new
// blob and deleting the old one.
type Blob struct {
	// ID is the store-generated identifier.
	ID BlobID `json:"id"`

	// Filename is the client-supplied file name.
	Filename string `json:"filename"`

	// ContentType is the media type recorded at upload time (may be empty).
	ContentType string `json:"content_type"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex SHA-256 of the content.
	Checksum string `json:"checksum"`

	// StorageKey is the key of the content in the storage backend.
	StorageKey string `json:"-"`

	// CreatedAt is the upload completion timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// NewBlob creates blob metadata for freshly written content.
func NewBlob(id BlobID, filename, contentType string, size int64, checksum string) *Blob {
	return &Blob{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Checksum:    checksum,
		StorageKey:  id.String(),
		CreatedAt:   time.Now().UTC(),
	}
}

// URL returns the blob-reference URL for this blob.
func (b *Blob) URL() string {
	return b.ID.URL()
}
