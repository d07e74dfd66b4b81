package crypto

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/domain"
)

func TestGenerateBlobID(t *testing.T) {
	seen := make(map[domain.BlobID]struct{})
	for i := 0; i < 100; i++ {
		id, err := GenerateBlobID()
		require.NoError(t, err)
		require.Len(t, id.String(), domain.BlobIDLength)

		parsed, err := domain.ParseBlobID(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)

		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestBlobIDTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := generateBlobIDAt(at)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id.String(), "66322ec0"))

	got, err := BlobIDTime(id)
	require.NoError(t, err)
	require.True(t, at.Equal(got))

	_, err = BlobIDTime("zz")
	require.ErrorIs(t, err, domain.ErrInvalidBlobID)
}

func TestHashReader(t *testing.T) {
	data := []byte("binary\r\n\x00\xff content")
	hr := NewHashReader(bytes.NewReader(data))

	out, err := io.ReadAll(hr)
	require.NoError(t, err)
	require.Equal(t, data, out)
	require.True(t, hr.IsFinished())
	require.Equal(t, int64(len(data)), hr.Size())
	require.Equal(t, ComputeSHA256(data), hr.SHA256())
	require.True(t, ValidateSHA256(hr.SHA256()))
	require.Equal(t, "\""+hr.SHA256()+"\"", hr.ETag())
}

func TestLimitedHashReader(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		limit   int64
		wantErr bool
	}{
		{"under limit", 10, 20, false},
		{"at limit", 20, 20, false},
		{"over limit", 21, 20, true},
		{"unlimited", 1000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hr := NewLimitedHashReader(bytes.NewReader(make([]byte, tt.size)), tt.limit)
			_, err := io.Copy(io.Discard, hr)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSizeLimitExceeded)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestComputeStreamSHA256(t *testing.T) {
	sum, size, err := ComputeStreamSHA256(strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), size)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestGenerateAdminToken(t *testing.T) {
	tok, err := GenerateAdminToken()
	require.NoError(t, err)
	require.Len(t, tok, AdminTokenBytes*2)
}
