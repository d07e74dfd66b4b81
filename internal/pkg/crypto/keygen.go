package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prn-tf/showcase-portal/internal/domain"
)

const (
	// blobIDTimeBytes is the timestamp prefix length of a blob id.
	blobIDTimeBytes = 4

	// blobIDRandomBytes is the random suffix length of a blob id.
	blobIDRandomBytes = 8

	// AdminTokenBytes is the number of random bytes in a generated admin token.
	AdminTokenBytes = 32
)

// GenerateBlobID generates a new 24-character hex blob identifier.
// Format: 4-byte big-endian unix seconds followed by 8 random bytes, so ids
// sort roughly by creation time.
func GenerateBlobID() (domain.BlobID, error) {
	return generateBlobIDAt(time.Now())
}

func generateBlobIDAt(t time.Time) (domain.BlobID, error) {
	buf := make([]byte, blobIDTimeBytes+blobIDRandomBytes)
	binary.BigEndian.PutUint32(buf[:blobIDTimeBytes], uint32(t.Unix()))

	if _, err := rand.Read(buf[blobIDTimeBytes:]); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return domain.BlobID(hex.EncodeToString(buf)), nil
}

// BlobIDTime extracts the creation time embedded in a blob id.
func BlobIDTime(id domain.BlobID) (time.Time, error) {
	raw, err := hex.DecodeString(id.String())
	if err != nil || len(raw) != blobIDTimeBytes+blobIDRandomBytes {
		return time.Time{}, domain.ErrInvalidBlobID
	}
	return time.Unix(int64(binary.BigEndian.Uint32(raw[:blobIDTimeBytes])), 0).UTC(), nil
}

// GenerateAdminToken generates a random 64-character hex token for the admin API.
func GenerateAdminToken() (string, error) {
	key := make([]byte, AdminTokenBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate admin token: %w", err)
	}
	return hex.EncodeToString(key), nil
}
