// Package crypto provides hashing and identifier generation for the Showcase portal.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// ErrSizeLimitExceeded is returned by a HashReader when more than its limit is read.
var ErrSizeLimitExceeded = errors.New("size limit exceeded")

// HashReader wraps an io.Reader and computes the SHA-256 while reading.
// An optional limit makes Read fail once more than limit bytes have passed.
type HashReader struct {
	reader   io.Reader
	sha256   hash.Hash
	size     int64
	limit    int64
	finished bool
}

// NewHashReader creates a new HashReader without a size limit.
func NewHashReader(r io.Reader) *HashReader {
	return NewLimitedHashReader(r, 0)
}

// NewLimitedHashReader creates a HashReader that rejects content larger than limit.
// A limit <= 0 means unlimited.
func NewLimitedHashReader(r io.Reader, limit int64) *HashReader {
	return &HashReader{
		reader: r,
		sha256: sha256.New(),
		limit:  limit,
	}
}

// Read implements io.Reader and updates hash computations.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.sha256.Write(p[:n])
		h.size += int64(n)
		if h.limit > 0 && h.size > h.limit {
			return n, ErrSizeLimitExceeded
		}
	}
	if err == io.EOF {
		h.finished = true
	}
	return n, err
}

// SHA256 returns the hex-encoded SHA-256 hash.
// Should only be called after reading is complete.
func (h *HashReader) SHA256() string {
	return hex.EncodeToString(h.sha256.Sum(nil))
}

// ETag returns a quoted strong validator derived from the SHA-256.
func (h *HashReader) ETag() string {
	return ETag(h.SHA256())
}

// Size returns the total number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// IsFinished returns true if EOF was reached.
func (h *HashReader) IsFinished() bool {
	return h.finished
}

// ETag formats a checksum as an HTTP entity tag.
func ETag(checksum string) string {
	return fmt.Sprintf("\"%s\"", checksum)
}

// ComputeSHA256 computes the SHA-256 hash of a byte slice.
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeStreamSHA256 computes the SHA-256 hash of a reader's content.
func ComputeStreamSHA256(r io.Reader) (string, int64, error) {
	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to compute SHA-256: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// ValidateSHA256 validates that a string is a valid SHA-256 hex hash.
func ValidateSHA256(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
